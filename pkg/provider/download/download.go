// Package download fetches generated images to local disk, re-encoding them
// by destination extension.
package download

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"

	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/provider"
)

// Name identifies this provider in errors and logs.
const Name = "download"

// DefaultTimeout bounds a single download.
const DefaultTimeout = 30 * time.Second

// Errors returned before any network I/O.
var (
	ErrScheme   = errors.New("url scheme must be http or https")
	ErrNoDest   = errors.New("destination path is empty")
	ErrNotImage = errors.New("response is not a decodable image")
)

// Downloader fetches and re-encodes images.
type Downloader struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Downloader whose requests are bounded by timeout.
func New(timeout time.Duration, rps float64, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Downloader{
		http:    provider.NewHTTPClient(timeout),
		limiter: provider.NewLimiter(rps),
		logger:  logger.With("provider", Name),
	}
}

// NewFromConfig creates a Downloader using providers.download_timeout.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Downloader {
	return New(cfg.Providers.DownloadTimeout.Std(), cfg.Providers.RPS, logger)
}

// CheckArgs validates rawURL and dest without touching the network.
func CheckArgs(rawURL, dest string) error {
	if strings.TrimSpace(dest) == "" {
		return ErrNoDest
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScheme, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: got %q", ErrScheme, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrScheme)
	}
	return nil
}

// Fetch downloads rawURL, decodes it as an image and writes it to dest as
// JPEG (.jpg, .jpeg) or PNG (anything else).
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) error {
	if err := CheckArgs(rawURL, dest); err != nil {
		return provider.Rejected(Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	resp, err := provider.Do(ctx, Name, d.http, d.limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("%w: %v", ErrNotImage, err))
	}

	if err := encodeFile(dest, img); err != nil {
		return provider.Transport(Name, err)
	}
	d.logger.Debug("image downloaded", "url", rawURL, "format", format, "dest", dest)
	return nil
}

func encodeFile(dest string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch strings.ToLower(filepath.Ext(dest)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(tmp, img)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}

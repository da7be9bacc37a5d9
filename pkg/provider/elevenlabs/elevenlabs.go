// Package elevenlabs is the primary text-to-speech provider.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/provider"
)

// Name identifies this provider in errors and logs.
const Name = "elevenlabs"

const (
	voicesCacheKey = "voices"
	voicesTTL      = 10 * time.Minute
)

// DefaultVoices is offered when the voice list cannot be fetched.
var DefaultVoices = []string{"Adam", "Bella", "Antoni", "Rachel", "Domi"}

// Voice is one voice available to the account.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Logger  *slog.Logger
}

// Client synthesizes speech through the ElevenLabs REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	voices  *gocache.Cache
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.elevenlabs.io"
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    provider.NewHTTPClient(opts.Timeout),
		limiter: provider.NewLimiter(opts.RPS),
		voices:  gocache.New(voicesTTL, 2*voicesTTL),
		logger:  opts.Logger.With("provider", Name),
	}
}

// NewFromConfig creates a Client from the providers section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	p := cfg.Providers
	return New(Options{
		APIKey:  p.ElevenLabs.APIKey,
		BaseURL: p.ElevenLabs.BaseURL,
		Timeout: p.Timeout.Std(),
		RPS:     p.RPS,
		Logger:  logger,
	})
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Available reports whether an API key is configured.
func (c *Client) Available() bool { return c.apiKey != "" }

// Synthesize renders text with voice and model and streams the audio to dest.
// voice may be a display name or a voice id.
func (c *Client) Synthesize(ctx context.Context, text, voice, model, dest string) error {
	if c.apiKey == "" {
		return provider.Unavailable(Name, errors.New("ELEVENLABS_API_KEY not set"))
	}
	if dest == "" {
		return provider.Rejected(Name, errors.New("destination path is empty"))
	}

	voiceID := c.resolveVoice(ctx, voice)
	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": model,
	})
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("encode request: %w", err))
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := provider.Do(ctx, Name, c.http, c.limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := writeStream(dest, resp.Body); err != nil {
		return provider.Transport(Name, err)
	}
	c.logger.Debug("speech synthesized", "voice", voice, "voice_id", voiceID, "dest", dest)
	return nil
}

// ListVoices returns the account's voices. Results are cached for ten minutes.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	if cached, ok := c.voices.Get(voicesCacheKey); ok {
		return cached.([]Voice), nil
	}
	if c.apiKey == "" {
		return nil, provider.Unavailable(Name, errors.New("ELEVENLABS_API_KEY not set"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := provider.Do(ctx, Name, c.http, c.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, provider.Transport(Name, fmt.Errorf("decode voices: %w", err))
	}

	c.voices.SetDefault(voicesCacheKey, payload.Voices)
	return payload.Voices, nil
}

// resolveVoice maps a display name to its id. Unknown names, and any lookup
// failure, fall through to using the value verbatim as an id.
func (c *Client) resolveVoice(ctx context.Context, voice string) string {
	voices, err := c.ListVoices(ctx)
	if err != nil {
		c.logger.Debug("voice lookup failed, using value as id", "voice", voice, "err", err)
		return voice
	}
	for _, v := range voices {
		if strings.EqualFold(v.Name, voice) {
			return v.ID
		}
	}
	return voice
}

// writeStream copies r into dest through a temp file so a failed transfer
// never leaves a truncated file at dest.
func writeStream(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("empty audio stream")
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename audio: %w", err)
	}
	return nil
}

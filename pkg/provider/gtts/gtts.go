// Package gtts is the credential-free fallback speech engine. It fetches
// MP3 audio from the Google Translate text-to-speech endpoint.
package gtts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/provider"
)

// Name identifies this provider in errors and logs.
const Name = "gtts"

// MaxChunk is the longest text, in characters, sent in one request.
const MaxChunk = 100

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) sa-tts"

// Options configures a Client.
type Options struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
	RPS      float64
	Logger   *slog.Logger
}

// Client fetches speech chunk by chunk.
type Client struct {
	baseURL  string
	language string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://translate.google.com"
	}
	if opts.Language == "" {
		opts.Language = "ar"
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		http:     provider.NewHTTPClient(opts.Timeout),
		limiter:  provider.NewLimiter(opts.RPS),
		logger:   opts.Logger.With("provider", Name),
	}
}

// NewFromConfig creates a Client from the providers section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	p := cfg.Providers
	return New(Options{
		BaseURL:  p.GTTS.BaseURL,
		Language: p.GTTS.Language,
		Timeout:  p.Timeout.Std(),
		RPS:      p.RPS,
		Logger:   logger,
	})
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Language returns the default language code.
func (c *Client) Language() string { return c.language }

// Save renders text in lang (the default language when empty) and writes the
// MP3 stream to dest.
func (c *Client) Save(ctx context.Context, text, lang, dest string) error {
	if dest == "" {
		return provider.Rejected(Name, errors.New("destination path is empty"))
	}
	if lang == "" {
		lang = c.language
	}
	chunks := Chunk(text, MaxChunk)
	if len(chunks) == 0 {
		return provider.Rejected(Name, errors.New("no text to speak"))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return provider.Rejected(Name, fmt.Errorf("create output dir: %w", err))
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("create output: %w", err))
	}
	defer os.Remove(tmp.Name())

	for i, chunk := range chunks {
		if err := c.fetch(ctx, chunk, lang, i, len(chunks), tmp); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return provider.Transport(Name, fmt.Errorf("close output: %w", err))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return provider.Transport(Name, fmt.Errorf("rename output: %w", err))
	}

	c.logger.Debug("speech saved", "lang", lang, "chunks", len(chunks), "dest", dest)
	return nil
}

func (c *Client) fetch(ctx context.Context, chunk, lang string, idx, total int, w io.Writer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := provider.Do(ctx, Name, c.http, c.limiter, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return provider.Transport(Name, fmt.Errorf("read chunk %d: %w", idx, err))
	}
	if n == 0 {
		return provider.Rejected(Name, fmt.Errorf("chunk %d: %w", idx, provider.ErrEmptyOutput))
	}
	return nil
}

// Chunk splits text into pieces of at most limit characters, breaking at
// whitespace and preferring sentence ends once a chunk is half full. Words
// longer than limit are cut.
func Chunk(text string, limit int) []string {
	var chunks []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}

	for _, word := range strings.Fields(text) {
		r := []rune(word)
		for len(r) > limit {
			flush()
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		sep := 0
		if len(cur) > 0 {
			sep = 1
		}
		if len(cur)+sep+len(r) > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur = append(cur, ' ')
		}
		cur = append(cur, r...)
		if endsSentence(r) && len(cur) >= limit/2 {
			flush()
		}
	}
	flush()
	return chunks
}

func endsSentence(r []rune) bool {
	if len(r) == 0 {
		return false
	}
	switch r[len(r)-1] {
	case '.', '!', '?', '؟', '。':
		return true
	}
	return false
}

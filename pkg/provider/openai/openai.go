// Package openai calls an OpenAI-compatible chat completions endpoint. It
// backs prompt and script suggestions, which work without it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/provider"
)

// Name identifies this provider in errors and logs.
const Name = "openai"

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gpt-3.5-turbo"

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	RPS     float64
	Logger  *slog.Logger
}

// Client sends single-turn chat completions.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		http:    provider.NewHTTPClient(opts.Timeout),
		limiter: provider.NewLimiter(opts.RPS),
		logger:  opts.Logger.With("provider", Name),
	}
}

// NewFromConfig creates a Client from the providers section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	p := cfg.Providers
	return New(Options{
		APIKey:  p.OpenAI.APIKey,
		BaseURL: p.OpenAI.BaseURL,
		Model:   p.OpenAI.Model,
		Timeout: p.Timeout.Std(),
		RPS:     p.RPS,
		Logger:  logger,
	})
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Available reports whether an API key is configured.
func (c *Client) Available() bool { return c.apiKey != "" }

// Prompt is one chat completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Complete returns the trimmed content of the first choice. An empty answer
// is reported as a rejection.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.apiKey == "" {
		return "", provider.Unavailable(Name, errors.New(config.EnvOpenAIKey+" not set"))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
	if err != nil {
		return "", provider.Rejected(Name, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := provider.Do(ctx, Name, c.http, c.limiter, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", provider.Transport(Name, fmt.Errorf("read response: %w", err))
	}
	content := strings.TrimSpace(gjson.GetBytes(raw, "choices.0.message.content").String())
	if content == "" {
		return "", provider.Rejected(Name, provider.ErrEmptyOutput)
	}
	c.logger.Debug("chat completion", "model", c.model,
		"prompt_tokens", gjson.GetBytes(raw, "usage.prompt_tokens").Int(),
		"completion_tokens", gjson.GetBytes(raw, "usage.completion_tokens").Int())
	return content, nil
}

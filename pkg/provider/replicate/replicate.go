// Package replicate calls hosted image and video models through the
// Replicate predictions API.
package replicate

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

	"golang.org/x/time/rate"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/provider"
)

// Name identifies this provider in errors and logs.
const Name = "replicate"

// DefaultPollInterval is the wait between status checks of a running prediction.
const DefaultPollInterval = time.Second

// Prediction states.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	RPS          float64
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client runs predictions and waits for their output.
type Client struct {
	apiKey       string
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.replicate.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = provider.DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		timeout:      opts.Timeout,
		pollInterval: opts.PollInterval,
		http:         provider.NewHTTPClient(opts.Timeout),
		limiter:      provider.NewLimiter(opts.RPS),
		logger:       opts.Logger.With("provider", Name),
	}
}

// NewFromConfig creates a Client from the providers section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	p := cfg.Providers
	return New(Options{
		APIKey:  p.Replicate.APIKey,
		BaseURL: p.Replicate.BaseURL,
		Timeout: p.Timeout.Std(),
		RPS:     p.RPS,
		Logger:  logger,
	})
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Available reports whether a token is configured.
func (c *Client) Available() bool { return c.apiKey != "" }

// ImageInput is the input of a text-to-image model.
type ImageInput struct {
	Model          string
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	NumOutputs     int
}

// GenerateImage runs a text-to-image model and returns its image URLs.
func (c *Client) GenerateImage(ctx context.Context, in ImageInput) (provider.Output, error) {
	return c.Run(ctx, in.Model, map[string]any{
		"prompt":          in.Prompt,
		"negative_prompt": in.NegativePrompt,
		"width":           in.Width,
		"height":          in.Height,
		"num_outputs":     in.NumOutputs,
	})
}

// GenerateVideo runs a text-to-video model for the given number of frames.
func (c *Client) GenerateVideo(ctx context.Context, model, prompt string, frames int) (provider.Output, error) {
	return c.Run(ctx, model, map[string]any{
		"prompt":     prompt,
		"num_frames": frames,
	})
}

// prediction is the subset of the predictions API response we read.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Run creates a prediction for model ("owner/name" or "owner/name:version")
// and polls it until it finishes or the client timeout elapses.
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (provider.Output, error) {
	if c.apiKey == "" {
		return provider.Output{}, provider.Unavailable(Name, errors.New("REPLICATE_API_TOKEN not set"))
	}

	path, body, err := predictionRequest(model, input)
	if err != nil {
		return provider.Output{}, provider.Rejected(Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	pred, err := c.send(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return provider.Output{}, err
	}

	for !pred.terminal() {
		select {
		case <-ctx.Done():
			return provider.Output{}, provider.Transport(Name, fmt.Errorf("prediction %s: %w", pred.ID, ctx.Err()))
		case <-time.After(c.pollInterval):
		}
		next := pred.URLs.Get
		if next == "" {
			next = c.baseURL + "/v1/predictions/" + pred.ID
		}
		pred, err = c.send(ctx, http.MethodGet, next, nil)
		if err != nil {
			return provider.Output{}, err
		}
	}

	c.logger.Debug("prediction finished", "model", model, "id", pred.ID, "status", pred.Status, "elapsed", time.Since(start))

	if pred.Status != StatusSucceeded {
		msg := strings.Trim(string(pred.Error), `"`)
		if msg == "" || msg == "null" {
			msg = "prediction " + pred.Status
		}
		return provider.Output{}, provider.Rejected(Name, errors.New(msg))
	}
	return provider.ParseOutput(Name, pred.Output)
}

func predictionRequest(model string, input map[string]any) (string, []byte, error) {
	name, version, hasVersion := strings.Cut(model, ":")
	owner, modelName, ok := strings.Cut(name, "/")
	if !ok || owner == "" || modelName == "" {
		return "", nil, fmt.Errorf("invalid model %q: want owner/name", model)
	}

	payload := map[string]any{"input": input}
	path := "/v1/models/" + owner + "/" + modelName + "/predictions"
	if hasVersion {
		payload["version"] = version
		path = "/v1/predictions"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode input: %w", err)
	}
	return path, body, nil
}

func (c *Client) send(ctx context.Context, method, url string, body []byte) (*prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, provider.Rejected(Name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}

	resp, err := provider.Do(ctx, Name, c.http, c.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, provider.Transport(Name, fmt.Errorf("decode prediction: %w", err))
	}
	return &pred, nil
}

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every outbound call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// NewHTTPClient returns a client whose every request is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewLimiter returns a limiter allowing rps requests per second with a
// burst of 2. A non-positive rps disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 2)
}

// Do waits on limiter, sends req and classifies any failure. On success the
// caller owns resp.Body.
func Do(ctx context.Context, name string, client *http.Client, limiter *rate.Limiter, req *http.Request) (*http.Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, Transport(name, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, Transport(name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, FromStatus(name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

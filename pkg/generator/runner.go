// Package generator implements the image, audio and video orchestrators.
//
// Every generation call follows the same path: validate the input, look up
// its fingerprint in the cache, call the provider on a miss, cache the
// result and update statistics. Expected failures never surface as errors;
// the public methods return a zero value and count the failure instead.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/metrics"
	"github.com/sa-platform/sa/pkg/models"
)

// maxRecordedPrompt bounds the prompt text stored in the history.
const maxRecordedPrompt = 200

// Recorder persists terminal generation outcomes.
type Recorder interface {
	Record(ctx context.Context, rec models.GenerationRecord) error
}

// Options carries the collaborators shared by all generators.
type Options struct {
	// Model overrides the provider model used when a request names none.
	Model string
	// History receives one record per terminal outcome. Optional.
	History Recorder
	// StoreDir holds artifacts cached by fingerprint. Audio only.
	StoreDir string
	Logger   *slog.Logger
}

// ErrMissingFile is reported when an input file does not exist.
var ErrMissingFile = errors.New("file not found")

// runner is the skeleton shared by the orchestrators.
type runner struct {
	kind    models.Kind
	cache   *cache.Cache
	history Recorder
	logger  *slog.Logger
	stats   counters
	group   singleflight.Group
}

func newRunner(kind models.Kind, c *cache.Cache, opts Options) *runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &runner{
		kind:    kind,
		cache:   c,
		history: opts.History,
		logger:  logger.With("kind", string(kind)),
	}
}

// event describes one terminal outcome.
type event struct {
	kind     models.Kind
	provider string
	key      string
	prompt   string
	outputs  int
	start    time.Time
}

func (r *runner) lookup(ctx context.Context, key string) (models.CacheValue, bool) {
	v, ok := r.cache.Get(ctx, key)
	if ok {
		r.logger.Debug("cache hit", "key", key)
	}
	return v, ok
}

// store writes a usable result. Failures are logged and otherwise ignored.
func (r *runner) store(ctx context.Context, key string, v models.CacheValue) {
	if err := r.cache.Put(ctx, key, v); err != nil {
		r.logger.Warn("failed to cache result", "key", key, "err", err)
	}
}

func (r *runner) cached(ctx context.Context, ev event) {
	r.stats.cached.Add(1)
	r.finish(ctx, models.OutcomeCached, 1, ev)
}

func (r *runner) generated(ctx context.Context, ev event) {
	r.stats.generated.Add(int64(ev.outputs))
	r.finish(ctx, models.OutcomeGenerated, ev.outputs, ev)
}

func (r *runner) fellBack(ctx context.Context, ev event) {
	r.stats.generated.Add(1)
	r.stats.fallback.Add(1)
	r.finish(ctx, models.OutcomeFallback, 1, ev)
}

func (r *runner) downloaded(ctx context.Context, ev event) {
	r.stats.downloaded.Add(1)
	r.finish(ctx, models.OutcomeGenerated, 1, ev)
}

func (r *runner) failed(ctx context.Context, ev event, err error) {
	r.stats.failed.Add(1)
	r.logger.Error("generation failed", "op", string(ev.kindOr(r.kind)), "provider", ev.provider, "err", err)
	ev.outputs = 0
	r.finish(ctx, models.OutcomeFailed, 1, ev)
}

// rejectInput counts a request refused before it reached the generator.
func (r *runner) rejectInput(ctx context.Context, prompt string, problems []string) {
	r.failed(ctx, event{prompt: prompt}, errors.New("invalid input: "+strings.Join(problems, "; ")))
}

func (r *runner) finish(ctx context.Context, outcome models.Outcome, n int, ev event) {
	kind := ev.kindOr(r.kind)
	metrics.RecordOutcome(kind, outcome, n)
	if r.history == nil {
		return
	}
	rec := models.GenerationRecord{
		Kind:        kind,
		Outcome:     outcome,
		Provider:    ev.provider,
		Fingerprint: ev.key,
		Prompt:      truncate(ev.prompt, maxRecordedPrompt),
		Outputs:     ev.outputs,
		CreatedAt:   time.Now().UTC(),
	}
	if !ev.start.IsZero() {
		rec.LatencyMs = time.Since(ev.start).Milliseconds()
	}
	if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("failed to record generation", "err", err)
	}
}

func (ev event) kindOr(def models.Kind) models.Kind {
	if ev.kind != "" {
		return ev.kind
	}
	return def
}

// call runs fn once per fingerprint at a time. Concurrent callers with the
// same key share the first caller's result. dedupe is false for uncached
// requests, which always reach the provider.
func call[T any](ctx context.Context, r *runner, dedupe bool, key string, fn func(context.Context) (T, error)) (T, error) {
	if !dedupe {
		return fn(ctx)
	}
	v, err, shared := r.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if shared {
		r.logger.Debug("shared in-flight generation", "key", key)
	}
	t, _ := v.(T)
	return t, err
}

// observe times a provider call for the latency histogram.
func observe(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveProvider(name, time.Since(start), err)
	return err
}

func (r *runner) clear(ctx context.Context) int {
	n, err := r.cache.Clear(ctx)
	if err != nil {
		r.logger.Warn("failed to clear cache", "err", err)
	}
	return n
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func issues(res models.ValidationResult) string {
	return strings.Join(res.Issues, "; ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

package generator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
	"github.com/sa-platform/sa/pkg/provider/elevenlabs"
	"github.com/sa-platform/sa/pkg/provider/replicate"
)

func newTestCache(t *testing.T, kind models.Kind) *cache.Cache {
	t.Helper()
	c := cache.New(cache.NewIndex(t.TempDir(), nil), string(kind), "json", nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeImages struct {
	calls   atomic.Int32
	out     provider.Output
	err     error
	release chan struct{}
	last    replicate.ImageInput
	mu      sync.Mutex
}

func (f *fakeImages) Name() string { return "fake-images" }

func (f *fakeImages) GenerateImage(_ context.Context, in replicate.ImageInput) (provider.Output, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = in
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.out, f.err
}

type fakeVideo struct {
	calls  atomic.Int32
	frames int
	model  string
	out    provider.Output
	err    error
}

func (f *fakeVideo) Name() string { return "fake-video" }

func (f *fakeVideo) GenerateVideo(_ context.Context, model, _ string, frames int) (provider.Output, error) {
	f.calls.Add(1)
	f.model = model
	f.frames = frames
	return f.out, f.err
}

type fakeDownloader struct {
	fail map[string]bool
}

func (f *fakeDownloader) Fetch(_ context.Context, url, dest string) error {
	if f.fail[url] {
		return provider.FromStatus("download", 404, "not found")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(url), 0o644)
}

type fakeSpeech struct {
	available bool
	err       error
	voices    []elevenlabs.Voice
	voicesErr error
	calls     atomic.Int32
}

func (f *fakeSpeech) Name() string    { return "fake-speech" }
func (f *fakeSpeech) Available() bool { return f.available }

func (f *fakeSpeech) Synthesize(_ context.Context, text, _, _, dest string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(text), 0o644)
}

func (f *fakeSpeech) ListVoices(context.Context) ([]elevenlabs.Voice, error) {
	return f.voices, f.voicesErr
}

type fakeFallback struct {
	err   error
	calls atomic.Int32
	lang  string
}

func (f *fakeFallback) Name() string     { return "fake-fallback" }
func (f *fakeFallback) Language() string { return "ar" }

func (f *fakeFallback) Save(_ context.Context, text, lang, dest string) error {
	f.calls.Add(1)
	f.lang = lang
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(text), 0o644)
}

// fakeEditor records calls and writes an empty output file on success.
type fakeEditor struct {
	mu      sync.Mutex
	calls   []string
	inputs  []string
	inputOK []bool
	gainDB  float64
	perImg  time.Duration
	err     error
}

func (f *fakeEditor) record(op string, out string, inputs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.inputs = append([]string(nil), inputs...)
	f.inputOK = f.inputOK[:0]
	for _, in := range inputs {
		_, err := os.Stat(in)
		f.inputOK = append(f.inputOK, err == nil)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, nil, 0o644)
}

func (f *fakeEditor) Duration(context.Context, string) (time.Duration, error) {
	return time.Second, nil
}

func (f *fakeEditor) Slideshow(_ context.Context, images []string, perImage time.Duration, _ int, out string) error {
	f.perImg = perImage
	return f.record("slideshow", out, images...)
}

func (f *fakeEditor) ReplaceAudio(_ context.Context, video, audio, out string) error {
	return f.record("replace", out, video, audio)
}

func (f *fakeEditor) MixIntoVideo(_ context.Context, video, voice, bg string, gainDB float64, out string) error {
	f.gainDB = gainDB
	return f.record("mixvideo", out, video, voice, bg)
}

func (f *fakeEditor) MixAudio(_ context.Context, voice, music string, gainDB float64, out string) error {
	f.gainDB = gainDB
	return f.record("mixaudio", out, voice, music)
}

func (f *fakeEditor) Concat(_ context.Context, inputs []string, out string) error {
	return f.record("concat", out, inputs...)
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []models.GenerationRecord
}

func (f *fakeHistory) Record(_ context.Context, rec models.GenerationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeHistory) outcomes() []models.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Outcome
	for _, r := range f.recs {
		out = append(out, r.Outcome)
	}
	return out
}

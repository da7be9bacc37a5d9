package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/media"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
	"github.com/sa-platform/sa/pkg/provider/elevenlabs"
	"github.com/sa-platform/sa/pkg/validate"
)

// ErrNoSpeechEngine is reported when neither the primary nor the fallback
// engine can be used.
var ErrNoSpeechEngine = errors.New("no speech engine available")

// SpeechProvider is the primary text-to-speech engine.
type SpeechProvider interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, text, voice, model, dest string) error
	ListVoices(ctx context.Context) ([]elevenlabs.Voice, error)
}

// FallbackSpeech is the credential-less engine used when the primary is
// unavailable.
type FallbackSpeech interface {
	Name() string
	Language() string
	Save(ctx context.Context, text, lang, dest string) error
}

// AudioGenerator orchestrates speech synthesis and audio mixing.
type AudioGenerator struct {
	r        *runner
	primary  SpeechProvider
	fallback FallbackSpeech
	editor   media.Editor
	tempDir  string
	storeDir string
}

// NewAudioGenerator creates an AudioGenerator. primary may be nil, in which
// case every request goes to fallback.
func NewAudioGenerator(c *cache.Cache, primary SpeechProvider, fallback FallbackSpeech, editor media.Editor, opts Options) *AudioGenerator {
	if opts.StoreDir == "" {
		opts.StoreDir = filepath.Join(os.TempDir(), "sa-audio")
	}
	return &AudioGenerator{
		r:        newRunner(models.KindAudio, c, opts),
		primary:  primary,
		fallback: fallback,
		editor:   editor,
		tempDir:  os.TempDir(),
		storeDir: opts.StoreDir,
	}
}

// speech is the outcome of one synthesis attempt.
type speech struct {
	path     string
	provider string
	fallback bool
}

// GenerateSpeech synthesizes req.Text into req.OutputPath and returns that
// path, or "" on failure. Cached audio lives in a file named after the
// fingerprint and is copied to req.OutputPath on every call, so reusing an
// output path never changes what a fingerprint serves.
func (g *AudioGenerator) GenerateSpeech(ctx context.Context, req models.SpeechRequest, progress models.ProgressFunc) string {
	ev := event{prompt: req.Text, start: time.Now()}
	if res := validate.SpeechText(req.Text); !res.Valid {
		msg := "invalid text: " + issues(res)
		g.r.failed(ctx, ev, errors.New(msg))
		progress.Notify("Error: " + msg)
		return ""
	}

	voice, model, out := req.Voice, req.Model, req.OutputPath
	if voice == "" {
		voice = models.DefaultVoice
	}
	if model == "" {
		model = models.DefaultAudioModel
	}
	if out == "" {
		out = "output.mp3"
	}
	ev.key = cache.ComputeKey(req.Text, map[string]any{"voice": voice, "model": model})

	target := out
	if req.UseCache {
		if v, ok := g.r.lookup(ctx, ev.key); ok {
			if err := copyFile(v.First(), out); err != nil {
				g.r.failed(ctx, ev, err)
				progress.Notify("Error: " + err.Error())
				return ""
			}
			ev.outputs = 1
			g.r.cached(ctx, ev)
			progress.Notify("Retrieved from cache")
			return out
		}
		target = g.artifact(ev.key)
	}

	res, err := call(ctx, g.r, req.UseCache, ev.key, func(ctx context.Context) (speech, error) {
		return g.synthesize(ctx, req.Text, voice, model, target, progress)
	})
	ev.provider = res.provider
	if err == nil {
		err = copyFile(target, out)
	}
	if err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}

	if req.UseCache {
		g.r.store(ctx, ev.key, models.Single(target))
	}
	ev.outputs = 1
	if res.fallback {
		g.r.fellBack(ctx, ev)
		progress.Notify("Fallback TTS complete")
	} else {
		g.r.generated(ctx, ev)
		progress.Notify("Speech generation complete")
	}
	g.r.logger.Info("speech generated", "provider", res.provider, "path", out)
	return out
}

// artifact is where the audio for fingerprint key is kept.
func (g *AudioGenerator) artifact(key string) string {
	return filepath.Join(g.storeDir, key+".mp3")
}

// synthesize tries the primary engine, then the fallback on any primary
// failure. Only a cancelled request skips the fallback.
func (g *AudioGenerator) synthesize(ctx context.Context, text, voice, model, out string, progress models.ProgressFunc) (speech, error) {
	if g.primary != nil && g.primary.Available() {
		name := g.primary.Name()
		progress.Notify("Generating speech with " + name + "...")
		err := observe(name, func() error {
			return g.primary.Synthesize(ctx, text, voice, model, out)
		})
		if err == nil {
			return speech{path: out, provider: name}, nil
		}
		if ctx.Err() != nil {
			return speech{provider: name}, err
		}
		g.r.logger.Warn("primary speech engine failed, falling back", "provider", name, "kind", provider.Kind(err), "err", err)
	} else {
		g.r.logger.Info("primary speech engine not configured, using fallback")
	}

	if g.fallback == nil {
		return speech{}, ErrNoSpeechEngine
	}
	name := g.fallback.Name()
	progress.Notify("Using fallback TTS...")
	err := observe(name, func() error {
		return g.fallback.Save(ctx, text, g.fallback.Language(), out)
	})
	if err != nil {
		return speech{provider: name}, fmt.Errorf("fallback: %w", err)
	}
	return speech{path: out, provider: name, fallback: true}, nil
}

// Voices lists the primary engine's voice names, or the default list when
// the engine is unavailable or the lookup fails.
func (g *AudioGenerator) Voices(ctx context.Context) []string {
	defaults := append([]string(nil), elevenlabs.DefaultVoices...)
	if g.primary == nil || !g.primary.Available() {
		return defaults
	}
	list, err := g.primary.ListVoices(ctx)
	if err != nil {
		g.r.logger.Warn("failed to list voices", "err", err)
		return defaults
	}
	var names []string
	for _, v := range list {
		if v.Name != "" {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		return defaults
	}
	return names
}

// AddBackgroundMusic overlays music under the voice track at the given
// linear volume and writes an MP3 to outPath.
func (g *AudioGenerator) AddBackgroundMusic(ctx context.Context, voicePath, musicPath, outPath string, volume float64, progress models.ProgressFunc) string {
	ev := event{kind: models.KindMix, prompt: voicePath, start: time.Now()}
	if outPath == "" {
		outPath = "mixed_audio.mp3"
	}
	if err := g.checkMix(voicePath, musicPath, volume); err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}

	progress.Notify("Mixing audio...")
	if err := g.editor.MixAudio(ctx, voicePath, musicPath, media.GainDB(volume), outPath); err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	progress.Notify("Audio mixing complete")
	return outPath
}

func (g *AudioGenerator) checkMix(voicePath, musicPath string, volume float64) error {
	if !exists(voicePath) {
		return fmt.Errorf("voice: %w: %s", ErrMissingFile, voicePath)
	}
	if !exists(musicPath) {
		return fmt.Errorf("music: %w: %s", ErrMissingFile, musicPath)
	}
	if err := validate.Volume(volume); err != nil {
		return err
	}
	if g.editor == nil {
		return errors.New("no media editor configured")
	}
	return nil
}

// GenerateNarration synthesizes each non-empty segment without the cache
// and joins them in order into outPath.
func (g *AudioGenerator) GenerateNarration(ctx context.Context, segments []models.ScriptSegment, outPath string, progress models.ProgressFunc) string {
	ev := event{kind: models.KindNarration, start: time.Now()}
	if outPath == "" {
		outPath = "narration.mp3"
	}
	if len(segments) == 0 {
		g.r.failed(ctx, ev, errors.New("no script segments provided"))
		return ""
	}
	if g.editor == nil {
		g.r.failed(ctx, ev, errors.New("no media editor configured"))
		return ""
	}

	dir := filepath.Join(g.tempDir, "sa-narration-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		g.r.failed(ctx, ev, fmt.Errorf("create temp dir: %w", err))
		return ""
	}
	defer os.RemoveAll(dir)

	var parts, texts []string
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			g.r.logger.Warn("skipping empty segment", "index", i)
			continue
		}
		progress.Notify(fmt.Sprintf("Generating segment %d/%d...", i+1, len(segments)))
		req := models.SpeechRequest{
			Text:       seg.Text,
			Voice:      seg.Voice,
			OutputPath: filepath.Join(dir, fmt.Sprintf("segment_%03d.mp3", i)),
		}
		if p := g.GenerateSpeech(ctx, req, nil); p != "" {
			parts = append(parts, p)
			texts = append(texts, seg.Text)
		}
	}
	ev.prompt = strings.Join(texts, " ")
	if len(parts) == 0 {
		g.r.failed(ctx, ev, errors.New("no valid segments generated"))
		progress.Notify("Error: no valid segments generated")
		return ""
	}

	progress.Notify("Combining segments...")
	if err := g.editor.Concat(ctx, parts, outPath); err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	progress.Notify("Narration complete")
	return outPath
}

// ClearCache removes every cached speech result along with its audio file
// and returns how many entries there were.
func (g *AudioGenerator) ClearCache(ctx context.Context) int {
	n := g.r.clear(ctx)
	files, _ := filepath.Glob(filepath.Join(g.storeDir, "*.mp3"))
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			g.r.logger.Warn("failed to remove cached audio", "path", f, "err", err)
		}
	}
	return n
}

// CacheSize returns the number of cached speech results.
func (g *AudioGenerator) CacheSize(ctx context.Context) int { return g.r.cache.Size(ctx) }

// CacheStats reports cache entries and hit counts.
func (g *AudioGenerator) CacheStats(ctx context.Context) models.CacheStats { return g.r.cache.Stats(ctx) }

// Statistics returns a snapshot of the counters.
func (g *AudioGenerator) Statistics() models.Stats { return g.r.stats.snapshot() }

// copyFile copies src to dst through a temp file in dst's directory.
// Copying a file onto itself is a no-op.
func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("copy audio to %s: %w", dst, err)
	}
	return nil
}

// RecordInvalid counts a request that failed validation before reaching
// the generator, so boundary rejections show up as failures.
func (g *AudioGenerator) RecordInvalid(ctx context.Context, text string, issues []string) {
	g.r.rejectInput(ctx, text, issues)
}

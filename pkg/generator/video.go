package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/media"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
	"github.com/sa-platform/sa/pkg/validate"
)

const videoEnhancement = "cinematic, smooth motion, high quality, 4k"

// VideoProvider generates video clips from text.
type VideoProvider interface {
	Name() string
	GenerateVideo(ctx context.Context, model, prompt string, frames int) (provider.Output, error)
}

// VideoGenerator orchestrates text-to-video generation and video editing.
type VideoGenerator struct {
	r        *runner
	provider VideoProvider
	editor   media.Editor
	model    string
}

// NewVideoGenerator creates a VideoGenerator backed by c.
func NewVideoGenerator(c *cache.Cache, p VideoProvider, editor media.Editor, opts Options) *VideoGenerator {
	model := opts.Model
	if model == "" {
		model = models.DefaultVideoModel
	}
	return &VideoGenerator{
		r:        newRunner(models.KindVideo, c, opts),
		provider: p,
		editor:   editor,
		model:    model,
	}
}

// GenerateFromText returns the URL of a clip rendered from req.Prompt, or
// "" on failure. The clip has Duration*FPS frames.
func (g *VideoGenerator) GenerateFromText(ctx context.Context, req models.VideoRequest, progress models.ProgressFunc) string {
	ev := event{prompt: req.Prompt, start: time.Now()}
	if g.provider != nil {
		ev.provider = g.provider.Name()
	}
	fail := func(err error) string {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}

	if res := validate.VideoPrompt(req.Prompt); !res.Valid {
		return fail(errors.New("invalid prompt: " + issues(res)))
	}
	if err := validate.Duration(req.Duration); err != nil {
		return fail(err)
	}
	fps := req.FPS
	if fps <= 0 {
		fps = models.DefaultVideoFPS
	}
	ev.key = cache.ComputeKey(req.Prompt, map[string]any{"duration": req.Duration, "fps": fps})

	if req.UseCache {
		if v, ok := g.r.lookup(ctx, ev.key); ok {
			ev.outputs = 1
			g.r.cached(ctx, ev)
			progress.Notify("Retrieved from cache")
			return v.First()
		}
	}
	if g.provider == nil {
		return fail(errors.New("no video provider configured"))
	}

	progress.Notify("Generating video...")
	frames := req.Duration * fps
	out, err := call(ctx, g.r, req.UseCache, ev.key, func(ctx context.Context) (provider.Output, error) {
		var out provider.Output
		err := observe(g.provider.Name(), func() error {
			var err error
			out, err = g.provider.GenerateVideo(ctx, g.model, req.Prompt, frames)
			return err
		})
		if err == nil && out.Empty() {
			err = provider.Rejected(g.provider.Name(), provider.ErrEmptyOutput)
		}
		return out, err
	})
	if err != nil {
		return fail(err)
	}

	url := out.First()
	if req.UseCache {
		g.r.store(ctx, ev.key, models.Single(url))
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	g.r.logger.Info("video generated", "url", url)
	progress.Notify("Video generation complete")
	return url
}

// CreateSlideshow renders the existing images in paths, secondsPerImage
// each, into outPath. Missing images are skipped.
func (g *VideoGenerator) CreateSlideshow(ctx context.Context, paths []string, secondsPerImage int, outPath string, fps int, progress models.ProgressFunc) string {
	ev := event{kind: models.KindSlideshow, start: time.Now()}
	fail := func(err error) string {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	if outPath == "" {
		outPath = "output.mp4"
	}
	if fps <= 0 {
		fps = models.DefaultVideoFPS
	}

	if len(paths) == 0 {
		return fail(errors.New("no images provided for slideshow"))
	}
	if err := validate.Duration(secondsPerImage); err != nil {
		return fail(err)
	}
	var valid []string
	for _, p := range paths {
		if exists(p) {
			valid = append(valid, p)
		} else {
			g.r.logger.Warn("image not found", "path", p)
		}
	}
	if len(valid) == 0 {
		return fail(errors.New("no valid images found"))
	}
	if g.editor == nil {
		return fail(errors.New("no media editor configured"))
	}

	progress.Notify(fmt.Sprintf("Creating slideshow with %d images...", len(valid)))
	if err := g.editor.Slideshow(ctx, valid, time.Duration(secondsPerImage)*time.Second, fps, outPath); err != nil {
		return fail(err)
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	g.r.logger.Info("slideshow created", "path", outPath, "images", len(valid))
	progress.Notify("Slideshow complete")
	return outPath
}

// AddAudio replaces the audio of videoPath with audioPath, looped or trimmed
// to the video's length.
func (g *VideoGenerator) AddAudio(ctx context.Context, videoPath, audioPath, outPath string, progress models.ProgressFunc) string {
	ev := event{kind: models.KindMux, prompt: videoPath, start: time.Now()}
	fail := func(err error) string {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	if outPath == "" {
		outPath = "output_with_audio.mp4"
	}
	if !exists(videoPath) {
		return fail(fmt.Errorf("video: %w: %s", ErrMissingFile, videoPath))
	}
	if !exists(audioPath) {
		return fail(fmt.Errorf("audio: %w: %s", ErrMissingFile, audioPath))
	}
	if g.editor == nil {
		return fail(errors.New("no media editor configured"))
	}

	progress.Notify("Adding audio to video...")
	if err := g.editor.ReplaceAudio(ctx, videoPath, audioPath, outPath); err != nil {
		return fail(err)
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	progress.Notify("Audio added successfully")
	return outPath
}

// AddBackgroundSounds mixes voicePath and an attenuated backgroundPath over
// videoPath for the video's full length.
func (g *VideoGenerator) AddBackgroundSounds(ctx context.Context, videoPath, voicePath, backgroundPath string, volume float64, outPath string, progress models.ProgressFunc) string {
	ev := event{kind: models.KindMix, prompt: videoPath, start: time.Now()}
	fail := func(err error) string {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	if outPath == "" {
		outPath = "output_mixed.mp4"
	}
	inputs := []struct{ label, path string }{
		{"video", videoPath},
		{"voice", voicePath},
		{"background", backgroundPath},
	}
	for _, in := range inputs {
		if !exists(in.path) {
			return fail(fmt.Errorf("%s: %w: %s", in.label, ErrMissingFile, in.path))
		}
	}
	if err := validate.Volume(volume); err != nil {
		return fail(err)
	}
	if g.editor == nil {
		return fail(errors.New("no media editor configured"))
	}

	progress.Notify("Mixing audio tracks...")
	if err := g.editor.MixIntoVideo(ctx, videoPath, voicePath, backgroundPath, media.GainDB(volume), outPath); err != nil {
		return fail(err)
	}
	ev.outputs = 1
	g.r.generated(ctx, ev)
	progress.Notify("Audio mixing complete")
	return outPath
}

// EnhancePrompt appends motion and quality keywords to prompt.
func (g *VideoGenerator) EnhancePrompt(prompt string) string {
	return prompt + ", " + videoEnhancement
}

// ClearCache removes every cached video result and returns how many there were.
func (g *VideoGenerator) ClearCache(ctx context.Context) int { return g.r.clear(ctx) }

// CacheSize returns the number of cached video results.
func (g *VideoGenerator) CacheSize(ctx context.Context) int { return g.r.cache.Size(ctx) }

// CacheStats reports cache entries and hit counts.
func (g *VideoGenerator) CacheStats(ctx context.Context) models.CacheStats { return g.r.cache.Stats(ctx) }

// Statistics returns a snapshot of the counters.
func (g *VideoGenerator) Statistics() models.Stats { return g.r.stats.snapshot() }

// RecordInvalid counts a request that failed validation before reaching
// the generator, so boundary rejections show up as failures.
func (g *VideoGenerator) RecordInvalid(ctx context.Context, prompt string, issues []string) {
	g.r.rejectInput(ctx, prompt, issues)
}

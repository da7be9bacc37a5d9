package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
	"github.com/sa-platform/sa/pkg/provider/replicate"
	"github.com/sa-platform/sa/pkg/validate"
)

// downloadWorkers bounds parallel downloads in BatchDownload.
const downloadWorkers = 4

// DefaultSuggestions is the number of prompt variations Suggestions returns
// when limit is not positive.
const DefaultSuggestions = 6

var imageEnhancements = []string{
	"high quality",
	"detailed",
	"professional",
	"8k resolution",
	"photorealistic",
}

var suggestionStyles = []string{
	"in anime style",
	"in realistic style",
	"in watercolor painting style",
	"in digital art style",
	"in 3D render style",
	"in oil painting style",
	"in cyberpunk style",
	"in fantasy art style",
	"in minimalist style",
	"in vintage style",
}

// ImageProvider generates images from text.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, in replicate.ImageInput) (provider.Output, error)
}

// Downloader saves a remote image locally.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string) error
}

// ImageGenerator orchestrates text-to-image generation.
type ImageGenerator struct {
	r          *runner
	provider   ImageProvider
	downloader Downloader
	model      string
}

// NewImageGenerator creates an ImageGenerator backed by c.
func NewImageGenerator(c *cache.Cache, p ImageProvider, d Downloader, opts Options) *ImageGenerator {
	model := opts.Model
	if model == "" {
		model = models.DefaultImageModel
	}
	return &ImageGenerator{
		r:          newRunner(models.KindImage, c, opts),
		provider:   p,
		downloader: d,
		model:      model,
	}
}

// Generate returns the image URLs for req, or nil when validation or the
// provider fails.
func (g *ImageGenerator) Generate(ctx context.Context, req models.ImageRequest, progress models.ProgressFunc) []string {
	ev := event{prompt: req.Prompt, start: time.Now()}
	if g.provider != nil {
		ev.provider = g.provider.Name()
	}

	if res := validate.ImagePrompt(req.Prompt, req.NegativePrompt); !res.Valid {
		return g.reject(ctx, ev, "invalid prompt: "+issues(res), progress)
	}
	if res := validate.Dimensions(req.Width, req.Height); !res.Valid {
		return g.reject(ctx, ev, "invalid dimensions: "+issues(res), progress)
	}
	if err := validate.NumOutputs(req.NumOutputs); err != nil {
		return g.reject(ctx, ev, err.Error(), progress)
	}

	model := req.Model
	if model == "" {
		model = g.model
	}
	params := map[string]any{
		"negative_prompt": req.NegativePrompt,
		"width":           req.Width,
		"height":          req.Height,
		"num_outputs":     req.NumOutputs,
		"model":           model,
	}
	ev.key = cache.ComputeKey(req.Prompt, params)

	if req.UseCache {
		if v, ok := g.r.lookup(ctx, ev.key); ok {
			ev.outputs = len(v.Items())
			g.r.cached(ctx, ev)
			progress.Notify("Retrieved from cache")
			return v.Items()
		}
	}

	if g.provider == nil {
		return g.reject(ctx, ev, "no image provider configured", progress)
	}

	progress.Notify(fmt.Sprintf("Generating %d image(s)...", req.NumOutputs))
	out, err := call(ctx, g.r, req.UseCache, ev.key, func(ctx context.Context) (provider.Output, error) {
		var out provider.Output
		err := observe(g.provider.Name(), func() error {
			var err error
			out, err = g.provider.GenerateImage(ctx, replicate.ImageInput{
				Model:          model,
				Prompt:         req.Prompt,
				NegativePrompt: req.NegativePrompt,
				Width:          req.Width,
				Height:         req.Height,
				NumOutputs:     req.NumOutputs,
			})
			return err
		})
		if err == nil && out.Empty() {
			err = provider.Rejected(g.provider.Name(), provider.ErrEmptyOutput)
		}
		return out, err
	})
	if err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return nil
	}

	urls := out.URLs()
	if req.UseCache {
		g.r.store(ctx, ev.key, out.ImageValue())
	}
	ev.outputs = len(urls)
	g.r.generated(ctx, ev)
	progress.Notify(fmt.Sprintf("Generated %d image(s) successfully", len(urls)))
	return urls
}

func (g *ImageGenerator) reject(ctx context.Context, ev event, msg string, progress models.ProgressFunc) []string {
	g.r.failed(ctx, ev, errors.New(msg))
	progress.Notify("Error: " + msg)
	return nil
}

// Download saves url to dest. It returns dest, or "" on failure. The cache
// is not touched.
func (g *ImageGenerator) Download(ctx context.Context, url, dest string, progress models.ProgressFunc) string {
	ev := event{kind: models.KindDownload, provider: "download", prompt: url, start: time.Now()}
	if g.downloader == nil {
		g.r.failed(ctx, ev, errors.New("no downloader configured"))
		return ""
	}
	progress.Notify("Downloading image...")
	err := observe(ev.provider, func() error {
		return g.downloader.Fetch(ctx, url, dest)
	})
	if err != nil {
		g.r.failed(ctx, ev, err)
		progress.Notify("Error: " + err.Error())
		return ""
	}
	ev.outputs = 1
	g.r.downloaded(ctx, ev)
	g.r.logger.Info("image downloaded", "dest", dest)
	progress.Notify("Download complete")
	return dest
}

// BatchDownload saves every URL into dir as image_<n>_<hash>.png, a few at a
// time. The returned paths keep input order; failed downloads are skipped.
func (g *ImageGenerator) BatchDownload(ctx context.Context, urls []string, dir string, progress models.ProgressFunc) []string {
	if len(urls) == 0 {
		g.r.logger.Warn("no URLs provided for batch download")
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		g.r.logger.Error("failed to create download dir", "dir", dir, "err", err)
		return nil
	}

	saved := make([]string, len(urls))
	var eg errgroup.Group
	eg.SetLimit(downloadWorkers)
	for i, u := range urls {
		dest := filepath.Join(dir, BatchFileName(i+1, u))
		progress.Notify(fmt.Sprintf("Downloading image %d/%d...", i+1, len(urls)))
		eg.Go(func() error {
			saved[i] = g.Download(ctx, u, dest, nil)
			return nil
		})
	}
	_ = eg.Wait()

	var paths []string
	for _, p := range saved {
		if p != "" {
			paths = append(paths, p)
		}
	}
	g.r.logger.Info("batch download complete", "saved", len(paths), "total", len(urls))
	progress.Notify(fmt.Sprintf("Downloaded %d/%d images", len(paths), len(urls)))
	return paths
}

// BatchFileName names the n-th (1-based) image of a batch download.
func BatchFileName(n int, url string) string {
	return fmt.Sprintf("image_%d_%s.png", n, fmt.Sprintf("%016x", xxhash.Sum64String(url))[:8])
}

// EnhancePrompt appends quality keywords to prompt.
func (g *ImageGenerator) EnhancePrompt(prompt string) string {
	return prompt + ", " + strings.Join(imageEnhancements, ", ")
}

// Suggestions returns up to limit style variations of base.
func (g *ImageGenerator) Suggestions(base string, limit int) []string {
	if strings.TrimSpace(base) == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultSuggestions
	}
	limit = min(limit, len(suggestionStyles))
	out := make([]string, 0, limit)
	for _, style := range suggestionStyles[:limit] {
		out = append(out, base+" "+style)
	}
	return out
}

// ClearCache removes every cached image result and returns how many there were.
func (g *ImageGenerator) ClearCache(ctx context.Context) int { return g.r.clear(ctx) }

// CacheSize returns the number of cached image results.
func (g *ImageGenerator) CacheSize(ctx context.Context) int { return g.r.cache.Size(ctx) }

// CacheStats reports cache entries and hit counts.
func (g *ImageGenerator) CacheStats(ctx context.Context) models.CacheStats { return g.r.cache.Stats(ctx) }

// Statistics returns a snapshot of the counters.
func (g *ImageGenerator) Statistics() models.Stats { return g.r.stats.snapshot() }

// RecordInvalid counts a request that failed validation before reaching
// the generator, so boundary rejections show up as failures.
func (g *ImageGenerator) RecordInvalid(ctx context.Context, prompt string, issues []string) {
	g.r.rejectInput(ctx, prompt, issues)
}

// Package app wires configuration into ready-to-use generators.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sa-platform/sa/pkg/cache"
	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/generator"
	"github.com/sa-platform/sa/pkg/media"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider/download"
	"github.com/sa-platform/sa/pkg/provider/elevenlabs"
	"github.com/sa-platform/sa/pkg/provider/gtts"
	"github.com/sa-platform/sa/pkg/provider/openai"
	"github.com/sa-platform/sa/pkg/provider/replicate"
	"github.com/sa-platform/sa/pkg/suggest"
	"github.com/sa-platform/sa/pkg/tracker"
)

// ErrUnknownKind is returned for a cache kind other than image, audio or video.
var ErrUnknownKind = errors.New("unknown cache kind")

// Services holds the generators and shared collaborators for one process.
type Services struct {
	Config  *config.Config
	Image   *generator.ImageGenerator
	Audio   *generator.AudioGenerator
	Video   *generator.VideoGenerator
	Suggest *suggest.Engine
	History tracker.Tracker

	closers []io.Closer
}

// New opens the caches and history database named by cfg and builds the
// three generators.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Services{Config: cfg}

	var history generator.Recorder
	if cfg.History.Enabled {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init tracker: %w", err)
		}
		s.History = tr
		s.closers = append(s.closers, tr)
		history = tr
	}

	caches := make(map[models.Kind]*cache.Cache, 3)
	for _, kind := range []models.Kind{models.KindImage, models.KindAudio, models.KindVideo} {
		c, err := cache.Open(ctx, cfg, string(kind), logger)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("init %s cache: %w", kind, err)
		}
		caches[kind] = c
		s.closers = append(s.closers, c)
	}

	rep := replicate.NewFromConfig(cfg, logger)
	editor := media.NewFFmpeg(cfg.Media, logger)
	if !editor.Available() {
		logger.Warn("ffmpeg/ffprobe not found, media editing will fail")
	}

	var primary generator.SpeechProvider
	if el := elevenlabs.NewFromConfig(cfg, logger); el.Available() {
		primary = el
	}

	s.Image = generator.NewImageGenerator(caches[models.KindImage], rep, download.NewFromConfig(cfg, logger), generator.Options{
		Model:   cfg.Providers.Replicate.ImageModel,
		History: history,
		Logger:  logger,
	})
	s.Audio = generator.NewAudioGenerator(caches[models.KindAudio], primary, gtts.NewFromConfig(cfg, logger), editor, generator.Options{
		History:  history,
		StoreDir: cfg.CacheDir(string(models.KindAudio)),
		Logger:   logger,
	})
	s.Video = generator.NewVideoGenerator(caches[models.KindVideo], rep, editor, generator.Options{
		Model:   cfg.Providers.Replicate.VideoModel,
		History: history,
		Logger:  logger,
	})
	s.Suggest = suggest.New(openai.NewFromConfig(cfg, logger), logger)
	return s, nil
}

// Stats returns the counters of every generator.
func (s *Services) Stats() map[models.Kind]models.Stats {
	return map[models.Kind]models.Stats{
		models.KindImage: s.Image.Statistics(),
		models.KindAudio: s.Audio.Statistics(),
		models.KindVideo: s.Video.Statistics(),
	}
}

// CacheStats reports every generator cache.
func (s *Services) CacheStats(ctx context.Context) []models.CacheStats {
	return []models.CacheStats{
		s.Image.CacheStats(ctx),
		s.Audio.CacheStats(ctx),
		s.Video.CacheStats(ctx),
	}
}

// ClearCache clears the cache of kind, or every cache when kind is "" or
// "all", and returns the number of entries removed.
func (s *Services) ClearCache(ctx context.Context, kind string) (int, error) {
	switch models.Kind(kind) {
	case models.KindImage:
		return s.Image.ClearCache(ctx), nil
	case models.KindAudio:
		return s.Audio.ClearCache(ctx), nil
	case models.KindVideo:
		return s.Video.ClearCache(ctx), nil
	case "", "all":
		return s.Image.ClearCache(ctx) + s.Audio.ClearCache(ctx) + s.Video.ClearCache(ctx), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Close releases caches and the history database.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

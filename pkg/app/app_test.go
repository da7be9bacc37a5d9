package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.OutputDir = dir
	cfg.DBPath = filepath.Join(dir, "data", "sa.db")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Providers.Replicate.APIKey = ""
	cfg.Providers.ElevenLabs.APIKey = ""
	cfg.Providers.OpenAI.APIKey = ""
	return cfg
}

func TestNewWiresGenerators(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NotNil(t, s.Image)
	require.NotNil(t, s.Audio)
	require.NotNil(t, s.Video)
	require.NotNil(t, s.History)
	require.NotNil(t, s.Suggest)
	assert.False(t, s.Suggest.Available())

	stats := s.Stats()
	assert.Len(t, stats, 3)
	assert.Zero(t, stats[models.KindImage].Generated)

	cs := s.CacheStats(ctx)
	require.Len(t, cs, 3)
	assert.Equal(t, "image", cs[0].Kind)
	assert.Equal(t, config.BackendJSON, cs[0].Backend)
}

func TestNewWithoutCredentialsFailsFast(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// replicate has no token, so the provider call is refused before any
	// network request and counted as a failure
	got := s.Image.Generate(ctx, models.NewImageRequest("A cat on a roof"), nil)
	assert.Nil(t, got)
	assert.EqualValues(t, 1, s.Image.Statistics().Failed)

	recent, err := s.History.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.OutcomeFailed, recent[0].Outcome)
}

func TestHistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false
	s, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.History)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, kind := range []string{"image", "audio", "video", "all", ""} {
		n, err := s.ClearCache(ctx, kind)
		assert.NoError(t, err, kind)
		assert.Zero(t, n)
	}
	_, err = s.ClearCache(ctx, "music")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memcached"
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

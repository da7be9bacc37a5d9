package generator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa-platform/sa/pkg/media"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
)

func newVideoGen(t *testing.T, p VideoProvider, ed *fakeEditor) *VideoGenerator {
	t.Helper()
	var editor media.Editor
	if ed != nil {
		editor = ed
	}
	return NewVideoGenerator(newTestCache(t, models.KindVideo), p, editor, Options{Model: "owner/video-model"})
}

func TestGenerateFromText(t *testing.T) {
	p := &fakeVideo{out: provider.MultipleOutput([]string{"https://vid.example/a.mp4", "https://vid.example/b.mp4"})}
	g := newVideoGen(t, p, nil)
	ctx := context.Background()

	req := models.NewVideoRequest("A drone shot over the ocean at sunrise")
	req.Duration, req.FPS = 4, 8

	got := g.GenerateFromText(ctx, req, nil)
	assert.Equal(t, "https://vid.example/a.mp4", got)
	assert.Equal(t, 32, p.frames)
	assert.Equal(t, "owner/video-model", p.model)

	assert.Equal(t, got, g.GenerateFromText(ctx, req, nil))
	assert.EqualValues(t, 1, p.calls.Load())
	assert.EqualValues(t, 1, g.Statistics().Cached)

	// a different fps is a different fingerprint
	req.FPS = 24
	g.GenerateFromText(ctx, req, nil)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestGenerateFromTextFailures(t *testing.T) {
	ctx := context.Background()

	p := &fakeVideo{out: provider.SingleOutput("https://vid.example/a.mp4")}
	g := newVideoGen(t, p, nil)
	assert.Equal(t, "", g.GenerateFromText(ctx, models.NewVideoRequest("short"), nil))
	zero := models.NewVideoRequest("A drone shot over the ocean")
	zero.Duration = 0
	assert.Equal(t, "", g.GenerateFromText(ctx, zero, nil))
	assert.Zero(t, p.calls.Load())

	p = &fakeVideo{err: provider.Transport("fake-video", errors.New("timeout"))}
	g = newVideoGen(t, p, nil)
	assert.Equal(t, "", g.GenerateFromText(ctx, models.NewVideoRequest("A drone shot over the ocean"), nil))
	assert.EqualValues(t, 1, g.Statistics().Failed)
	assert.Zero(t, g.CacheSize(ctx))
}

func TestCreateSlideshowMissingImages(t *testing.T) {
	ed := &fakeEditor{}
	g := newVideoGen(t, nil, ed)

	got := g.CreateSlideshow(context.Background(), []string{"missing1.png", "missing2.png"}, 3, "out.mp4", 24, nil)

	assert.Equal(t, "", got)
	assert.EqualValues(t, 1, g.Statistics().Failed)
	assert.Empty(t, ed.calls)
}

func TestCreateSlideshowSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.png"))
	b := writeFile(t, filepath.Join(dir, "b.png"))
	out := filepath.Join(dir, "show.mp4")
	ed := &fakeEditor{}
	g := newVideoGen(t, nil, ed)

	got := g.CreateSlideshow(context.Background(), []string{a, filepath.Join(dir, "gone.png"), b}, 2, out, 24, nil)

	require.Equal(t, out, got)
	assert.Equal(t, []string{a, b}, ed.inputs)
	assert.Equal(t, 2*time.Second, ed.perImg)
	assert.EqualValues(t, 1, g.Statistics().Generated)
}

func TestCreateSlideshowInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.png"))
	ed := &fakeEditor{}
	g := newVideoGen(t, nil, ed)

	assert.Equal(t, "", g.CreateSlideshow(context.Background(), []string{a}, 0, filepath.Join(dir, "o.mp4"), 24, nil))
	assert.Empty(t, ed.calls)
	assert.EqualValues(t, 1, g.Statistics().Failed)
}

func TestAddAudio(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "clip.mp4"))
	audio := writeFile(t, filepath.Join(dir, "voice.mp3"))
	out := filepath.Join(dir, "out.mp4")
	ed := &fakeEditor{}
	g := newVideoGen(t, nil, ed)
	ctx := context.Background()

	assert.Equal(t, out, g.AddAudio(ctx, video, audio, out, nil))
	assert.Equal(t, []string{"replace"}, ed.calls)

	assert.Equal(t, "", g.AddAudio(ctx, video, filepath.Join(dir, "none.mp3"), out, nil))
	assert.Equal(t, "", g.AddAudio(ctx, filepath.Join(dir, "none.mp4"), audio, out, nil))
	assert.Len(t, ed.calls, 1)
	assert.EqualValues(t, 2, g.Statistics().Failed)
}

func TestAddAudioEditorFailure(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "clip.mp4"))
	audio := writeFile(t, filepath.Join(dir, "voice.mp3"))
	g := newVideoGen(t, nil, &fakeEditor{err: errors.New("ffmpeg exploded")})

	var last string
	assert.Equal(t, "", g.AddAudio(context.Background(), video, audio, filepath.Join(dir, "o.mp4"), func(s string) { last = s }))
	assert.Equal(t, "Error: ffmpeg exploded", last)
}

func TestAddBackgroundSounds(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, filepath.Join(dir, "clip.mp4"))
	voice := writeFile(t, filepath.Join(dir, "voice.mp3"))
	bg := writeFile(t, filepath.Join(dir, "rain.mp3"))
	out := filepath.Join(dir, "out.mp4")
	ed := &fakeEditor{}
	g := newVideoGen(t, nil, ed)
	ctx := context.Background()

	assert.Equal(t, out, g.AddBackgroundSounds(ctx, video, voice, bg, 0.5, out, nil))
	assert.InDelta(t, -10.0, ed.gainDB, 1e-9)
	assert.Equal(t, []string{video, voice, bg}, ed.inputs)

	assert.Equal(t, "", g.AddBackgroundSounds(ctx, video, voice, bg, -0.1, out, nil))
	assert.Equal(t, "", g.AddBackgroundSounds(ctx, video, voice, filepath.Join(dir, "none.mp3"), 0.5, out, nil))
	assert.Len(t, ed.calls, 1)
}

func TestVideoEnhancePrompt(t *testing.T) {
	g := newVideoGen(t, nil, nil)
	assert.Equal(t, "waves, cinematic, smooth motion, high quality, 4k", g.EnhancePrompt("waves"))
}

package suggest

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider/openai"
)

type fakeModel struct {
	answer string
	err    error
	calls  atomic.Int32
	last   openai.Prompt
}

func (f *fakeModel) Name() string    { return "fake-model" }
func (f *fakeModel) Available() bool { return true }

func (f *fakeModel) Complete(_ context.Context, p openai.Prompt) (string, error) {
	f.calls.Add(1)
	f.last = p
	return f.answer, f.err
}

func TestImprovePromptTemplates(t *testing.T) {
	e := New(nil, nil)
	ctx := context.Background()
	assert.False(t, e.Available())

	assert.Equal(t, "A sunset, detailed, high quality, professional, 8k resolution", e.ImprovePrompt(ctx, "A sunset", models.KindImage))
	assert.Contains(t, e.ImprovePrompt(ctx, "A car", models.KindVideo), "cinematic")
	assert.Contains(t, e.ImprovePrompt(ctx, "A speech", models.KindAudio), "well-paced")
	assert.Equal(t, "A thing, high quality", e.ImprovePrompt(ctx, "A thing", "music"))
	assert.Zero(t, e.CacheSize(), "template answers are not memoized")
}

func TestImprovePromptMemoizesModelAnswer(t *testing.T) {
	m := &fakeModel{answer: "A golden sunset over calm water, soft light"}
	e := New(m, nil)
	ctx := context.Background()

	first := e.ImprovePrompt(ctx, "A sunset", models.KindImage)
	second := e.ImprovePrompt(ctx, "A sunset", models.KindImage)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, m.calls.Load())
	assert.Contains(t, m.last.System, "image generation")
	assert.Equal(t, 1, e.CacheSize())

	assert.Equal(t, 1, e.ClearCache())
	assert.Zero(t, e.CacheSize())
}

func TestModelFailureUsesTemplate(t *testing.T) {
	m := &fakeModel{err: errors.New("quota exceeded")}
	e := New(m, nil)

	assert.Equal(t, "A sunset, high quality", e.ImprovePrompt(context.Background(), "A sunset", "other"))
	assert.EqualValues(t, 1, m.calls.Load())
	assert.Zero(t, e.CacheSize())
}

func TestVariations(t *testing.T) {
	ctx := context.Background()
	e := New(nil, nil)

	got := e.Variations(ctx, "Original prompt", 3)
	require.Len(t, got, 3)
	for _, v := range got {
		assert.True(t, strings.HasPrefix(v, "Original prompt in "), v)
	}
	assert.Len(t, e.Variations(ctx, "Original prompt", 50), len(variationStyles))
	assert.Equal(t, "creative scene in realistic style", e.Variations(ctx, "  ", 1)[0])

	m := &fakeModel{answer: "1. A neon city at night\n2) 3D render of a city\n\n- A city in fog\n4. Extra"}
	got = New(m, nil).Variations(ctx, "a city", 3)
	assert.Equal(t, []string{"A neon city at night", "3D render of a city", "A city in fog"}, got)
}

func TestScript(t *testing.T) {
	ctx := context.Background()

	got := New(nil, nil).Script(ctx, "autumn leaves", 3)
	require.Len(t, got, 3)
	assert.Equal(t, Scene{Visual: "Opening scene: autumn leaves", Narration: "Introduction to autumn leaves"}, got[0])
	assert.Len(t, New(nil, nil).Script(ctx, "x", 9), 5)

	m := &fakeModel{answer: "Here is your script.\n" +
		"Scene 1: A forest at dawn | Narration: The day begins.\n" +
		"Scene 2: Leaves falling | Narration: Autumn arrives."}
	got = New(m, nil).Script(ctx, "autumn leaves", 5)
	assert.Equal(t, []Scene{
		{Visual: "A forest at dawn", Narration: "The day begins."},
		{Visual: "Leaves falling", Narration: "Autumn arrives."},
	}, got)

	// an answer without any scene lines falls back to the template
	m = &fakeModel{answer: "I cannot help with that."}
	assert.Len(t, New(m, nil).Script(ctx, "autumn leaves", 2), 2)
}

func TestSegments(t *testing.T) {
	segs := Segments([]Scene{
		{Visual: "a", Narration: "First line."},
		{Visual: "b", Narration: "  "},
		{Visual: "c", Narration: "Last line."},
	}, "Rachel")
	assert.Equal(t, []models.ScriptSegment{
		{Text: "First line.", Voice: "Rachel"},
		{Text: "Last line.", Voice: "Rachel"},
	}, segs)
}

func TestStyles(t *testing.T) {
	ctx := context.Background()
	e := New(nil, nil)
	assert.Equal(t, []string{"cinematic", "documentary", "animated", "time-lapse", "slow-motion"}, e.Styles(ctx, "x", models.KindVideo))
	assert.Equal(t, []string{"default", "creative", "professional"}, e.Styles(ctx, "x", "music"))

	m := &fakeModel{answer: "noir, pop art, , ukiyo-e, pixel art, baroque, cubism"}
	assert.Equal(t, []string{"noir", "pop art", "ukiyo-e", "pixel art", "baroque"}, New(m, nil).Styles(ctx, "x", models.KindImage))
}

func TestThemes(t *testing.T) {
	ctx := context.Background()
	e := New(nil, nil)

	list := Themes()
	assert.Len(t, list, 20)
	list[0] = "changed"
	assert.Equal(t, "nature", Themes()[0])

	assert.Equal(t, "Cosmic space view, stars and galaxies, deep space exploration", e.FromTheme(ctx, "space", models.KindImage))
	assert.Equal(t, "Creative food scene, high quality, detailed", e.FromTheme(ctx, "food", models.KindImage))
	assert.Len(t, e.ThemePrompts(ctx, "food", 3, models.KindImage), 3)
}

func TestNextScenesAndMood(t *testing.T) {
	ctx := context.Background()
	e := New(nil, nil)
	assert.Equal(t, "Continue from: a beach", e.NextScenes(ctx, "a beach")[0])
	assert.Equal(t, Mood{Mood: "calm", Tempo: "medium", Genre: "ambient"}, e.MusicMood(ctx, "a beach"))

	m := &fakeModel{answer: "Mood: Upbeat\nTempo: fast\nGenre:"}
	assert.Equal(t, Mood{Mood: "upbeat", Tempo: "fast", Genre: "ambient"}, New(m, nil).MusicMood(ctx, "a party"))
}

package generator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa-platform/sa/pkg/media"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider"
	"github.com/sa-platform/sa/pkg/provider/elevenlabs"
)

func newAudioGen(t *testing.T, primary SpeechProvider, fallback FallbackSpeech, editor *fakeEditor) *AudioGenerator {
	t.Helper()
	var ed media.Editor
	if editor != nil {
		ed = editor
	}
	g := NewAudioGenerator(newTestCache(t, models.KindAudio), primary, fallback, ed, Options{StoreDir: t.TempDir()})
	g.tempDir = t.TempDir()
	return g
}

func speechReq(t *testing.T, text string) models.SpeechRequest {
	return models.NewSpeechRequest(text, filepath.Join(t.TempDir(), "speech.mp3"))
}

func TestGenerateSpeechWithoutCredentialUsesFallback(t *testing.T) {
	fb := &fakeFallback{}
	g := newAudioGen(t, nil, fb, nil)

	req := speechReq(t, "Hello there")
	got := g.GenerateSpeech(context.Background(), req, nil)

	require.Equal(t, req.OutputPath, got)
	assert.FileExists(t, got)
	assert.EqualValues(t, 1, fb.calls.Load())
	assert.Equal(t, "ar", fb.lang)

	stats := g.Statistics()
	assert.EqualValues(t, 1, stats.Generated)
	assert.EqualValues(t, 1, stats.FallbackUsed)
	assert.Zero(t, stats.Failed)
}

func TestGenerateSpeechUnavailablePrimarySkipped(t *testing.T) {
	primary := &fakeSpeech{available: false}
	fb := &fakeFallback{}
	g := newAudioGen(t, primary, fb, nil)

	assert.NotEmpty(t, g.GenerateSpeech(context.Background(), speechReq(t, "Hello there"), nil))
	assert.Zero(t, primary.calls.Load())
	assert.EqualValues(t, 1, fb.calls.Load())
}

func TestGenerateSpeechPrimary(t *testing.T) {
	primary := &fakeSpeech{available: true}
	fb := &fakeFallback{}
	g := newAudioGen(t, primary, fb, nil)
	ctx := context.Background()

	req := speechReq(t, "Hello there")
	got := g.GenerateSpeech(ctx, req, nil)
	assert.Equal(t, req.OutputPath, got)

	again := g.GenerateSpeech(ctx, req, nil)
	assert.Equal(t, got, again)
	assert.EqualValues(t, 1, primary.calls.Load())
	assert.Zero(t, fb.calls.Load())

	stats := g.Statistics()
	assert.EqualValues(t, 1, stats.Generated)
	assert.EqualValues(t, 1, stats.Cached)
	assert.Zero(t, stats.FallbackUsed)
}

func TestGenerateSpeechFallbackOnTransientErrors(t *testing.T) {
	for _, err := range []error{
		provider.FromStatus("fake-speech", 401, "bad key"),
		provider.FromStatus("fake-speech", 503, "down"),
		provider.Transport("fake-speech", errors.New("connection reset")),
	} {
		primary := &fakeSpeech{available: true, err: err}
		fb := &fakeFallback{}
		g := newAudioGen(t, primary, fb, nil)

		got := g.GenerateSpeech(context.Background(), speechReq(t, "Hello there"), nil)
		assert.NotEmpty(t, got, "error %v should fall back", err)
		assert.EqualValues(t, 1, fb.calls.Load())
		assert.EqualValues(t, 1, g.Statistics().FallbackUsed)
	}
}

func TestGenerateSpeechRejectedPrimaryFallsBack(t *testing.T) {
	primary := &fakeSpeech{available: true, err: provider.FromStatus("fake-speech", 422, "text rejected")}
	fb := &fakeFallback{}
	g := newAudioGen(t, primary, fb, nil)
	ctx := context.Background()

	req := speechReq(t, "Hello there")
	assert.Equal(t, req.OutputPath, g.GenerateSpeech(ctx, req, nil))
	assert.EqualValues(t, 1, fb.calls.Load())
	assert.EqualValues(t, 1, g.Statistics().FallbackUsed)
	assert.Zero(t, g.Statistics().Failed)
	assert.Equal(t, 1, g.CacheSize(ctx))
}

func TestGenerateSpeechUnknownVoiceFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel"}]}`))
	})
	mux.HandleFunc("POST /v1/text-to-speech/{voice}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":{"status":"voice_not_found"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	primary := elevenlabs.New(elevenlabs.Options{APIKey: "xi-test", BaseURL: srv.URL})
	fb := &fakeFallback{}
	g := newAudioGen(t, primary, fb, nil)

	req := speechReq(t, "Hello there")
	req.Voice = "Nobody"
	got := g.GenerateSpeech(context.Background(), req, nil)

	require.Equal(t, req.OutputPath, got)
	assert.EqualValues(t, 1, fb.calls.Load())
	stats := g.Statistics()
	assert.EqualValues(t, 1, stats.FallbackUsed)
	assert.Zero(t, stats.Failed)
}

func TestGenerateSpeechCancelledDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &fakeSpeech{available: true, err: provider.Transport("fake-speech", context.Canceled)}
	fb := &fakeFallback{}
	g := newAudioGen(t, primary, fb, nil)

	assert.Equal(t, "", g.GenerateSpeech(ctx, speechReq(t, "Hello there"), nil))
	assert.Zero(t, fb.calls.Load())
	assert.EqualValues(t, 1, g.Statistics().Failed)
}

func TestGenerateSpeechReusedOutputPath(t *testing.T) {
	primary := &fakeSpeech{available: true}
	g := newAudioGen(t, primary, nil, nil)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "output.mp3")

	for _, text := range []string{"Hello world", "Goodbye world", "Hello world"} {
		require.Equal(t, out, g.GenerateSpeech(ctx, models.NewSpeechRequest(text, out), nil))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, text, string(data))
	}
	assert.EqualValues(t, 2, primary.calls.Load())
	assert.EqualValues(t, 1, g.Statistics().Cached)
}

func TestGenerateSpeechFailureRecordsProvider(t *testing.T) {
	hist := &fakeHistory{}
	fb := &fakeFallback{err: errors.New("no network")}
	g := NewAudioGenerator(newTestCache(t, models.KindAudio), nil, fb, nil, Options{StoreDir: t.TempDir(), History: hist})

	assert.Equal(t, "", g.GenerateSpeech(context.Background(), speechReq(t, "Hello there"), nil))
	require.Len(t, hist.recs, 1)
	assert.Equal(t, models.OutcomeFailed, hist.recs[0].Outcome)
	assert.Equal(t, "fake-fallback", hist.recs[0].Provider)
}

func TestGenerateSpeechBothEnginesFail(t *testing.T) {
	primary := &fakeSpeech{available: true, err: provider.Transport("fake-speech", errors.New("timeout"))}
	fb := &fakeFallback{err: errors.New("no network")}
	g := newAudioGen(t, primary, fb, nil)

	var last string
	got := g.GenerateSpeech(context.Background(), speechReq(t, "Hello there"), func(s string) { last = s })
	assert.Equal(t, "", got)
	assert.EqualValues(t, 1, g.Statistics().Failed)
	assert.Zero(t, g.Statistics().Generated)
	assert.Contains(t, last, "no network")
}

func TestGenerateSpeechNoEngines(t *testing.T) {
	g := newAudioGen(t, nil, nil, nil)
	assert.Equal(t, "", g.GenerateSpeech(context.Background(), speechReq(t, "Hello there"), nil))
	assert.EqualValues(t, 1, g.Statistics().Failed)
}

func TestGenerateSpeechStaleCacheEntry(t *testing.T) {
	primary := &fakeSpeech{available: true}
	g := newAudioGen(t, primary, nil, nil)
	ctx := context.Background()

	req := speechReq(t, "Hello there")
	path := g.GenerateSpeech(ctx, req, nil)
	require.NoError(t, os.RemoveAll(g.storeDir))

	assert.Equal(t, path, g.GenerateSpeech(ctx, req, nil))
	assert.EqualValues(t, 2, primary.calls.Load())
	assert.Zero(t, g.Statistics().Cached)
}

func TestGenerateSpeechValidation(t *testing.T) {
	fb := &fakeFallback{}
	g := newAudioGen(t, nil, fb, nil)

	assert.Equal(t, "", g.GenerateSpeech(context.Background(), speechReq(t, "Hi"), nil))
	assert.Zero(t, fb.calls.Load())
	assert.EqualValues(t, 1, g.Statistics().Failed)
}

func TestVoices(t *testing.T) {
	ctx := context.Background()

	g := newAudioGen(t, nil, nil, nil)
	assert.Equal(t, elevenlabs.DefaultVoices, g.Voices(ctx))

	g = newAudioGen(t, &fakeSpeech{available: true, voicesErr: errors.New("down")}, nil, nil)
	assert.Equal(t, elevenlabs.DefaultVoices, g.Voices(ctx))

	g = newAudioGen(t, &fakeSpeech{available: true, voices: []elevenlabs.Voice{{ID: "1", Name: "Nour"}, {ID: "2"}}}, nil, nil)
	assert.Equal(t, []string{"Nour"}, g.Voices(ctx))
}

func TestAddBackgroundMusic(t *testing.T) {
	dir := t.TempDir()
	voice := writeFile(t, filepath.Join(dir, "voice.mp3"))
	music := writeFile(t, filepath.Join(dir, "music.mp3"))
	out := filepath.Join(dir, "mixed.mp3")
	ctx := context.Background()

	ed := &fakeEditor{}
	g := newAudioGen(t, nil, nil, ed)

	assert.Equal(t, out, g.AddBackgroundMusic(ctx, voice, music, out, 0.3, nil))
	assert.InDelta(t, -14.0, ed.gainDB, 1e-9)
	assert.Equal(t, []string{voice, music}, ed.inputs)

	assert.Equal(t, "", g.AddBackgroundMusic(ctx, voice, filepath.Join(dir, "nope.mp3"), out, 0.3, nil))
	assert.Equal(t, "", g.AddBackgroundMusic(ctx, voice, music, out, 1.5, nil))
	assert.Len(t, ed.calls, 1)

	stats := g.Statistics()
	assert.EqualValues(t, 1, stats.Generated)
	assert.EqualValues(t, 2, stats.Failed)
}

func TestGenerateNarration(t *testing.T) {
	ed := &fakeEditor{}
	g := newAudioGen(t, &fakeSpeech{available: true}, nil, ed)
	out := filepath.Join(t.TempDir(), "narration.mp3")

	got := g.GenerateNarration(context.Background(), []models.ScriptSegment{
		{Text: "First part of the story."},
		{Text: "   "},
		{Text: "Second part.", Voice: "Bella"},
	}, out, nil)

	require.Equal(t, out, got)
	require.Equal(t, []string{"concat"}, ed.calls)
	require.Len(t, ed.inputs, 2)
	assert.Equal(t, []bool{true, true}, ed.inputOK)
	assert.Equal(t, "segment_000.mp3", filepath.Base(ed.inputs[0]))
	assert.Equal(t, "segment_002.mp3", filepath.Base(ed.inputs[1]))

	// segments are synthesized without the cache and the temp dir is removed
	assert.Zero(t, g.CacheSize(context.Background()))
	_, err := os.Stat(filepath.Dir(ed.inputs[0]))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateNarrationNothingToSay(t *testing.T) {
	ed := &fakeEditor{}
	g := newAudioGen(t, &fakeSpeech{available: true}, nil, ed)

	assert.Equal(t, "", g.GenerateNarration(context.Background(), nil, "", nil))
	assert.Equal(t, "", g.GenerateNarration(context.Background(), []models.ScriptSegment{{Text: ""}}, "", nil))
	assert.Empty(t, ed.calls)
	assert.EqualValues(t, 2, g.Statistics().Failed)
}

func TestClearCacheRemovesAudioFiles(t *testing.T) {
	g := newAudioGen(t, &fakeSpeech{available: true}, nil, nil)
	ctx := context.Background()

	out := g.GenerateSpeech(ctx, speechReq(t, "Hello there"), nil)
	require.NotEmpty(t, out)
	files, _ := filepath.Glob(filepath.Join(g.storeDir, "*.mp3"))
	require.Len(t, files, 1)

	assert.Equal(t, 1, g.ClearCache(ctx))
	files, _ = filepath.Glob(filepath.Join(g.storeDir, "*.mp3"))
	assert.Empty(t, files)
	assert.FileExists(t, out)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sa-platform/sa/pkg/app"
	"github.com/sa-platform/sa/pkg/config"
)

// upstream fakes Replicate predictions, image hosting, the gTTS endpoint
// and chat completions.
type upstream struct {
	srv         *httptest.Server
	predictions atomic.Int32
	speech      atomic.Int32
	chats       atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/models/{owner}/{name}/predictions", func(w http.ResponseWriter, r *http.Request) {
		u.predictions.Add(1)
		var body struct {
			Input map[string]any `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		n := 1
		if v, ok := body.Input["num_outputs"].(float64); ok {
			n = int(v)
		}
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s/files/out_%d.png", u.srv.URL, i)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p1", "status": "succeeded", "output": out})
	})
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(1, 1, color.RGBA{R: 255, A: 255})
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, img)
	})
	mux.HandleFunc("GET /translate_tts", func(w http.ResponseWriter, r *http.Request) {
		u.speech.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		u.chats.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A red fox in fresh snow, golden hour"}}]}`))
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func newTestServer(t *testing.T) (*Server, *upstream) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*config.Config, *upstream)) (*Server, *upstream) {
	t.Helper()
	u := newUpstream(t)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.OutputDir = dir
	cfg.DBPath = filepath.Join(dir, "data", "sa.db")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Providers.Replicate.APIKey = "r8_test"
	cfg.Providers.Replicate.BaseURL = u.srv.URL
	cfg.Providers.ElevenLabs.APIKey = ""
	cfg.Providers.GTTS.BaseURL = u.srv.URL
	cfg.Providers.OpenAI.APIKey = ""
	cfg.Providers.OpenAI.BaseURL = u.srv.URL
	cfg.Providers.RPS = 0
	if configure != nil {
		configure(cfg, u)
	}

	svc, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return New(svc, nil), u
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var job jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job), w.Body.String())
	return job
}

type errorBody struct {
	Error apiError `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestConfigStatus(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/config/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "replicate")
}

func TestImagesGenerateAndCache(t *testing.T) {
	s, u := newTestServer(t)
	body := map[string]any{"prompt": "A lighthouse at dusk", "num_outputs": 2}

	w := do(t, s, http.MethodPost, "/v1/images", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job := decodeJob(t, w)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.NotEmpty(t, job.JobID)
	require.Len(t, job.Outputs, 2)
	assert.True(t, strings.HasSuffix(job.Outputs[0], "/files/out_0.png"))

	w = do(t, s, http.MethodPost, "/v1/images", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.Outputs, decodeJob(t, w).Outputs)
	assert.EqualValues(t, 1, u.predictions.Load(), "second request is served from cache")
}

func TestImagesDownload(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/images", map[string]any{
		"prompt":   "A red square on white",
		"download": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job := decodeJob(t, w)
	require.Len(t, job.Files, 1)
	assert.True(t, strings.HasPrefix(job.Files[0], "/v1/files/image_1_"))

	f := do(t, s, http.MethodGet, job.Files[0], nil)
	assert.Equal(t, http.StatusOK, f.Code)
	_, err := png.Decode(f.Body)
	assert.NoError(t, err)
}

func TestImagesValidation(t *testing.T) {
	s, u := newTestServer(t)

	tests := []struct {
		name  string
		body  map[string]any
		issue string
	}{
		{"short prompt", map[string]any{"prompt": "cat"}, "too short"},
		{"small size", map[string]any{"prompt": "A lighthouse", "width": 128}, "too small"},
		{"odd size", map[string]any{"prompt": "A lighthouse", "width": 1000}, "multiples of 64"},
		{"too many outputs", map[string]any{"prompt": "A lighthouse", "num_outputs": 5}, "num_outputs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/images", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			apiErr := decodeError(t, w)
			assert.Equal(t, "sa_error", apiErr.Type)
			require.NotEmpty(t, apiErr.Issues)
			assert.Contains(t, strings.Join(apiErr.Issues, "; "), tt.issue)
		})
	}
	assert.Zero(t, u.predictions.Load())
	assert.EqualValues(t, len(tests), s.svc.Image.Statistics().Failed)
}

func TestImagesBadBody(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/images", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decodeError(t, w).Message)
}

func TestAudioUsesFallbackEngine(t *testing.T) {
	s, u := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/audio", map[string]any{"text": "Hello there"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	job := decodeJob(t, w)
	require.Len(t, job.Outputs, 1)
	require.Len(t, job.Files, 1)
	data, err := os.ReadFile(job.Outputs[0])
	require.NoError(t, err)
	assert.Equal(t, "ID3fake-mp3", string(data))
	assert.EqualValues(t, 1, u.speech.Load())

	stats := s.svc.Audio.Statistics()
	assert.EqualValues(t, 1, stats.FallbackUsed)
}

func TestAudioValidation(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/audio", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/v1/audio", map[string]any{
		"text":         "Hello there",
		"music_path":   "music.mp3",
		"music_volume": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Issues[0], "volume out of range")
	assert.EqualValues(t, 2, s.svc.Audio.Statistics().Failed)
}

func TestVideosGenerate(t *testing.T) {
	s, u := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/videos", map[string]any{
		"prompt":   "A drone shot over a foggy forest",
		"duration": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job := decodeJob(t, w)
	require.Len(t, job.Outputs, 1)
	assert.EqualValues(t, 1, u.predictions.Load())
}

func TestVideosValidation(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/videos", map[string]any{"prompt": "short", "duration": -1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decodeError(t, w).Issues, 2)
	assert.EqualValues(t, 1, s.svc.Video.Statistics().Failed)
}

func TestSlideshowMissingImagesFails(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/videos/slideshow", map[string]any{
		"images": []string{"/nonexistent/a.png", "/nonexistent/b.png"},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	job := decodeJob(t, w)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "slideshow creation failed", job.Error)

	w = do(t, s, http.MethodPost, "/v1/videos/slideshow", map[string]any{"images": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndClearCache(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/images", map[string]any{"prompt": "A lighthouse at dusk"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Generators["image"].Generated)
	require.Len(t, stats.Cache, 3)
	assert.Equal(t, 1, stats.Cache[0].Entries)
	assert.NotEmpty(t, stats.History)

	w = do(t, s, http.MethodDelete, "/v1/cache/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"kind":"image","cleared":1}`, w.Body.String())

	w = do(t, s, http.MethodDelete, "/v1/cache/music", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileRejectsTraversal(t *testing.T) {
	s, _ := newTestServer(t)
	for _, name := range []string{"..%2Fsecret", ".hidden"} {
		w := do(t, s, http.MethodGet, "/v1/files/"+name, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
	w := do(t, s, http.MethodGet, "/v1/files/missing.mp3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestImprovePrompt(t *testing.T) {
	s, u := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/prompts/improve", map[string]any{"prompt": "A fox", "content_type": "video"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A fox", body["original"])
	assert.Contains(t, body["improved"], "cinematic")
	assert.Zero(t, u.chats.Load())

	w = do(t, s, http.MethodPost, "/v1/prompts/improve", map[string]any{"prompt": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImprovePromptUsesChatModel(t *testing.T) {
	s, u := newTestServerWith(t, func(cfg *config.Config, _ *upstream) {
		cfg.Providers.OpenAI.APIKey = "sk-test"
	})
	for range 2 {
		w := do(t, s, http.MethodPost, "/v1/prompts/improve", map[string]any{"prompt": "A fox"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "A red fox in fresh snow")
	}
	assert.EqualValues(t, 1, u.chats.Load(), "second answer comes from the memo")
}

func TestPromptVariations(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/prompts/variations", map[string]any{"prompt": "A fox"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Original   string   `json:"original"`
		Variations []string `json:"variations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A fox", body.Original)
	assert.Len(t, body.Variations, 3)

	for _, count := range []int{0, 6} {
		w = do(t, s, http.MethodPost, "/v1/prompts/variations", map[string]any{"prompt": "A fox", "count": count})
		assert.Equal(t, http.StatusBadRequest, w.Code, count)
		assert.Contains(t, decodeError(t, w).Issues, "count must be between 1 and 5")
	}
}

func TestPromptStylesAndThemes(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/prompts/styles?content_type=video", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "documentary")

	w = do(t, s, http.MethodGet, "/v1/prompts/themes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Themes []string `json:"themes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Themes, 20)
}

func TestGenerateScript(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/scripts/generate", map[string]any{"idea": "autumn leaves", "num_scenes": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body scriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "autumn leaves", body.Idea)
	require.Len(t, body.Scenes, 2)
	assert.Equal(t, "Introduction to autumn leaves", body.Scenes[0].Narration)
	assert.Empty(t, body.JobID)

	w = do(t, s, http.MethodPost, "/v1/scripts/generate", map[string]any{"idea": "", "num_scenes": 11})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decodeError(t, w).Issues, 2)
}

func TestGenerateScriptNarration(t *testing.T) {
	s, u := newTestServer(t)
	w := do(t, s, http.MethodPost, "/v1/scripts/generate", map[string]any{"idea": "autumn leaves", "narrate": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body scriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Scenes, 3)
	assert.NotEmpty(t, body.JobID)
	assert.EqualValues(t, 3, u.speech.Load())
	// joining segments needs ffmpeg, so either outcome is reported
	assert.True(t, len(body.Files) == 1 || body.Error != "", w.Body.String())
}

func TestListAndDeleteOutputs(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/outputs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"images":[],"videos":[],"audio":[]}`, w.Body.String())

	require.NoError(t, os.MkdirAll(s.files, 0o755))
	for _, name := range []string{"a.png", "b.MP4", "c.mp3", "notes.txt", ".hidden.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(s.files, name), []byte("x"), 0o644))
	}

	w = do(t, s, http.MethodGet, "/v1/outputs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list outputsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Images, 1)
	assert.Equal(t, "/v1/files/a.png", list.Images[0].URL)
	require.Len(t, list.Videos, 1)
	assert.Equal(t, "b.MP4", list.Videos[0].Name)
	require.Len(t, list.Audio, 1)
	assert.EqualValues(t, 1, list.Audio[0].Size)

	w = do(t, s, http.MethodDelete, "/v1/outputs/c.mp3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoFileExists(t, filepath.Join(s.files, "c.mp3"))

	w = do(t, s, http.MethodDelete, "/v1/outputs/c.mp3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, http.MethodDelete, "/v1/outputs/..%2Fsa.db", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

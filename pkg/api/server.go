// Package api exposes the generators, prompt suggestions and generated
// files over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sa-platform/sa/pkg/app"
	"github.com/sa-platform/sa/pkg/metrics"
	"github.com/sa-platform/sa/pkg/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// MaxAPIOutputs is the largest num_outputs accepted over HTTP.
const MaxAPIOutputs = 4

// Job statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Server is the SA HTTP API.
type Server struct {
	svc    *app.Services
	logger *slog.Logger
	files  string
	router chi.Router
}

// New creates a Server backed by svc. Generated files are written under
// <output_dir>/api and served from /v1/files.
func New(svc *app.Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger.With("component", "api"),
		files:  filepath.Join(svc.Config.OutputDir, "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/config/status", s.handleConfigStatus)
		r.Post("/images", s.handleImages)
		r.Post("/audio", s.handleAudio)
		r.Post("/videos", s.handleVideos)
		r.Post("/videos/slideshow", s.handleSlideshow)
		r.Get("/stats", s.handleStats)
		r.Delete("/cache/{kind}", s.handleClearCache)
		r.Get("/files/{name}", s.handleFile)

		r.Post("/prompts/improve", s.handleImprovePrompt)
		r.Post("/prompts/variations", s.handlePromptVariations)
		r.Get("/prompts/styles", s.handlePromptStyles)
		r.Get("/prompts/themes", s.handleThemes)
		r.Post("/scripts/generate", s.handleGenerateScript)

		r.Get("/outputs", s.handleListOutputs)
		r.Delete("/outputs/{name}", s.handleDeleteOutput)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.svc.Config.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sa api listening", "addr", s.svc.Config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Config.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Generators: s.svc.Stats(),
		Cache:      s.svc.CacheStats(r.Context()),
	}
	if s.svc.History != nil {
		summary, err := s.svc.History.Summary(r.Context(), "")
		if err != nil {
			s.logger.Warn("history summary failed", "err", err)
		}
		resp.History = summary
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	n, err := s.svc.ClearCache(r.Context(), kind)
	if errors.Is(err, app.ErrUnknownKind) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "cleared": n})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.localFile(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	http.ServeFile(w, r, path)
}

// localFile resolves name inside the API output directory, writing a 400
// for names that could escape it and a 404 for files that do not exist.
func (s *Server) localFile(w http.ResponseWriter, name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeJSONError(w, http.StatusBadRequest, "invalid file name")
		return "", false
	}
	path := filepath.Join(s.files, name)
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		writeJSONError(w, http.StatusNotFound, "file not found")
		return "", false
	}
	return path, true
}

// outputPath returns a fresh file path for a job and makes sure the
// directory exists.
func (s *Server) outputPath(jobID, ext string) (string, error) {
	if err := os.MkdirAll(s.files, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(s.files, jobID+ext), nil
}

// fileURL returns the download URL for a file written by outputPath.
func fileURL(path string) string {
	return "/v1/files/" + filepath.Base(path)
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func newJobID() string {
	return uuid.NewString()
}

func useCache(v *bool) bool {
	return v == nil || *v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Code    int      `json:"code"`
	Issues  []string `json:"issues,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code int, message string, issues ...string) {
	writeJSON(w, code, map[string]apiError{
		"error": {Message: message, Type: "sa_error", Code: code, Issues: issues},
	})
}

type statsResponse struct {
	Generators map[models.Kind]models.Stats `json:"generators"`
	Cache      []models.CacheStats          `json:"cache"`
	History    []models.HistorySummary      `json:"history,omitempty"`
}

package api

import (
	"net/http"
	"strings"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/suggest"
)

// Request limits for suggestion endpoints.
const (
	maxAPIVariations     = 5
	defaultAPIVariations = 3
	defaultAPIScenes     = 3
)

type improveRequest struct {
	Prompt      string      `json:"prompt"`
	ContentType models.Kind `json:"content_type"`
}

func (s *Server) handleImprovePrompt(w http.ResponseWriter, r *http.Request) {
	var body improveRequest
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid prompt request", "prompt cannot be empty")
		return
	}
	if body.ContentType == "" {
		body.ContentType = models.KindImage
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"original": body.Prompt,
		"improved": s.svc.Suggest.ImprovePrompt(r.Context(), body.Prompt, body.ContentType),
	})
}

type variationsRequest struct {
	Prompt string `json:"prompt"`
	Count  *int   `json:"count"`
}

func (s *Server) handlePromptVariations(w http.ResponseWriter, r *http.Request) {
	var body variationsRequest
	if !decode(w, r, &body) {
		return
	}
	count := defaultAPIVariations
	if body.Count != nil {
		count = *body.Count
	}
	var issues []string
	if strings.TrimSpace(body.Prompt) == "" {
		issues = append(issues, "prompt cannot be empty")
	}
	if count < 1 || count > maxAPIVariations {
		issues = append(issues, "count must be between 1 and 5")
	}
	if len(issues) > 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid variations request", issues...)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"original":   body.Prompt,
		"variations": s.svc.Suggest.Variations(r.Context(), body.Prompt, count),
	})
}

func (s *Server) handlePromptStyles(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	kind := models.Kind(r.URL.Query().Get("content_type"))
	if kind == "" {
		kind = models.KindImage
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content_type": kind,
		"styles":       s.svc.Suggest.Styles(r.Context(), prompt, kind),
	})
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"themes": suggest.Themes()})
}

type scriptRequest struct {
	Idea      string `json:"idea"`
	NumScenes *int   `json:"num_scenes"`
	Narrate   bool   `json:"narrate"`
	Voice     string `json:"voice"`
}

type scriptResponse struct {
	Idea   string          `json:"idea"`
	Scenes []suggest.Scene `json:"scenes"`
	JobID  string          `json:"job_id,omitempty"`
	Files  []string        `json:"files,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// handleGenerateScript drafts a scene list and, when asked, voices the
// narration into a single MP3. A failed narration still returns the script.
func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	var body scriptRequest
	if !decode(w, r, &body) {
		return
	}
	scenes := defaultAPIScenes
	if body.NumScenes != nil {
		scenes = *body.NumScenes
	}
	var issues []string
	if strings.TrimSpace(body.Idea) == "" {
		issues = append(issues, "idea cannot be empty")
	}
	if scenes < 1 || scenes > suggest.MaxScenes {
		issues = append(issues, "num_scenes must be between 1 and 10")
	}
	if len(issues) > 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid script request", issues...)
		return
	}

	resp := scriptResponse{Idea: body.Idea, Scenes: s.svc.Suggest.Script(r.Context(), body.Idea, scenes)}
	if !body.Narrate {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.JobID = newJobID()
	out, err := s.outputPath(resp.JobID, ".mp3")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	segments := suggest.Segments(resp.Scenes, body.Voice)
	if path := s.svc.Audio.GenerateNarration(r.Context(), segments, out, nil); path != "" {
		resp.Files = s.servedFile(path)
	} else {
		resp.Error = "narration failed"
		s.logger.Warn("script narration failed", "job_id", resp.JobID, "scenes", len(resp.Scenes))
	}
	writeJSON(w, http.StatusOK, resp)
}

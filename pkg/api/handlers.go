package api

import (
	"net/http"
	"path/filepath"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/validate"
)

// defaultMusicVolume is the background level used when a request gives none.
const defaultMusicVolume = 0.3

type jobResponse struct {
	JobID   string      `json:"job_id"`
	Status  string      `json:"status"`
	Kind    models.Kind `json:"kind"`
	Outputs []string    `json:"outputs,omitempty"`
	Files   []string    `json:"files,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) completed(w http.ResponseWriter, job jobResponse) {
	job.Status = StatusCompleted
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) failed(w http.ResponseWriter, job jobResponse, msg string) {
	job.Status = StatusFailed
	job.Error = msg
	s.logger.Warn("job failed", "job_id", job.JobID, "kind", job.Kind, "err", msg)
	writeJSON(w, http.StatusBadGateway, job)
}

// servedFile returns the download URL of path when it lives in the API
// output directory.
func (s *Server) servedFile(path string) []string {
	if filepath.Dir(path) != filepath.Clean(s.files) {
		return nil
	}
	return []string{fileURL(path)}
}

type imageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumOutputs     int    `json:"num_outputs"`
	Model          string `json:"model"`
	UseCache       *bool  `json:"use_cache"`
	Enhance        bool   `json:"enhance"`
	Download       bool   `json:"download"`
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	var body imageRequest
	if !decode(w, r, &body) {
		return
	}
	req := models.NewImageRequest(body.Prompt)
	req.NegativePrompt = body.NegativePrompt
	if body.Width > 0 {
		req.Width = body.Width
	}
	if body.Height > 0 {
		req.Height = body.Height
	}
	if body.NumOutputs != 0 {
		req.NumOutputs = body.NumOutputs
	}
	if body.Model != "" {
		req.Model = body.Model
	}
	req.UseCache = useCache(body.UseCache)

	var issues []string
	issues = append(issues, validate.ImagePrompt(req.Prompt, req.NegativePrompt).Issues...)
	issues = append(issues, validate.Dimensions(req.Width, req.Height).Issues...)
	if req.NumOutputs < 1 || req.NumOutputs > MaxAPIOutputs {
		issues = append(issues, "num_outputs must be between 1 and 4")
	}
	if len(issues) > 0 {
		s.svc.Image.RecordInvalid(r.Context(), req.Prompt, issues)
		writeJSONError(w, http.StatusBadRequest, "invalid image request", issues...)
		return
	}
	if body.Enhance {
		req.Prompt = s.svc.Image.EnhancePrompt(req.Prompt)
	}

	job := jobResponse{JobID: newJobID(), Kind: models.KindImage}
	urls := s.svc.Image.Generate(r.Context(), req, nil)
	if len(urls) == 0 {
		s.failed(w, job, "image generation failed")
		return
	}
	job.Outputs = urls

	if body.Download {
		for _, p := range s.svc.Image.BatchDownload(r.Context(), urls, s.files, nil) {
			job.Files = append(job.Files, fileURL(p))
		}
	}
	s.completed(w, job)
}

type audioRequest struct {
	Text        string   `json:"text"`
	Voice       string   `json:"voice"`
	Model       string   `json:"model"`
	UseCache    *bool    `json:"use_cache"`
	MusicPath   string   `json:"music_path"`
	MusicVolume *float64 `json:"music_volume"`
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	var body audioRequest
	if !decode(w, r, &body) {
		return
	}
	if res := validate.SpeechText(body.Text); !res.Valid {
		s.svc.Audio.RecordInvalid(r.Context(), body.Text, res.Issues)
		writeJSONError(w, http.StatusBadRequest, "invalid audio request", res.Issues...)
		return
	}
	volume := defaultMusicVolume
	if body.MusicVolume != nil {
		volume = *body.MusicVolume
	}
	if body.MusicPath != "" {
		if err := validate.Volume(volume); err != nil {
			s.svc.Audio.RecordInvalid(r.Context(), body.Text, []string{err.Error()})
			writeJSONError(w, http.StatusBadRequest, "invalid audio request", err.Error())
			return
		}
	}

	job := jobResponse{JobID: newJobID(), Kind: models.KindAudio}
	out, err := s.outputPath(job.JobID, ".mp3")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req := models.NewSpeechRequest(body.Text, out)
	if body.Voice != "" {
		req.Voice = body.Voice
	}
	if body.Model != "" {
		req.Model = body.Model
	}
	req.UseCache = useCache(body.UseCache)

	path := s.svc.Audio.GenerateSpeech(r.Context(), req, nil)
	if path == "" {
		s.failed(w, job, "speech generation failed")
		return
	}

	if body.MusicPath != "" {
		mixed, err := s.outputPath(job.JobID+"_mixed", ".mp3")
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		path = s.svc.Audio.AddBackgroundMusic(r.Context(), path, body.MusicPath, mixed, volume, nil)
		if path == "" {
			s.failed(w, job, "background music mixing failed")
			return
		}
	}
	job.Outputs = []string{path}
	job.Files = s.servedFile(path)
	s.completed(w, job)
}

type videoRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	FPS      int    `json:"fps"`
	UseCache *bool  `json:"use_cache"`
	Enhance  bool   `json:"enhance"`
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	var body videoRequest
	if !decode(w, r, &body) {
		return
	}
	req := models.NewVideoRequest(body.Prompt)
	if body.Duration != 0 {
		req.Duration = body.Duration
	}
	if body.FPS > 0 {
		req.FPS = body.FPS
	}
	req.UseCache = useCache(body.UseCache)

	issues := validate.VideoPrompt(req.Prompt).Issues
	if err := validate.Duration(req.Duration); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) > 0 {
		s.svc.Video.RecordInvalid(r.Context(), req.Prompt, issues)
		writeJSONError(w, http.StatusBadRequest, "invalid video request", issues...)
		return
	}
	if body.Enhance {
		req.Prompt = s.svc.Video.EnhancePrompt(req.Prompt)
	}

	job := jobResponse{JobID: newJobID(), Kind: models.KindVideo}
	url := s.svc.Video.GenerateFromText(r.Context(), req, nil)
	if url == "" {
		s.failed(w, job, "video generation failed")
		return
	}
	job.Outputs = []string{url}
	s.completed(w, job)
}

type slideshowRequest struct {
	Images          []string `json:"images"`
	SecondsPerImage int      `json:"seconds_per_image"`
	FPS             int      `json:"fps"`
	AudioPath       string   `json:"audio_path"`
}

func (s *Server) handleSlideshow(w http.ResponseWriter, r *http.Request) {
	var body slideshowRequest
	if !decode(w, r, &body) {
		return
	}
	if body.SecondsPerImage == 0 {
		body.SecondsPerImage = 3
	}
	var issues []string
	if len(body.Images) == 0 {
		issues = append(issues, "images must not be empty")
	}
	if err := validate.Duration(body.SecondsPerImage); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) > 0 {
		s.svc.Video.RecordInvalid(r.Context(), "slideshow", issues)
		writeJSONError(w, http.StatusBadRequest, "invalid slideshow request", issues...)
		return
	}

	job := jobResponse{JobID: newJobID(), Kind: models.KindSlideshow}
	out, err := s.outputPath(job.JobID, ".mp4")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	path := s.svc.Video.CreateSlideshow(r.Context(), body.Images, body.SecondsPerImage, out, body.FPS, nil)
	if path == "" {
		s.failed(w, job, "slideshow creation failed")
		return
	}

	if body.AudioPath != "" {
		withAudio, err := s.outputPath(job.JobID+"_audio", ".mp4")
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		path = s.svc.Video.AddAudio(r.Context(), path, body.AudioPath, withAudio, nil)
		if path == "" {
			s.failed(w, job, "adding audio failed")
			return
		}
	}
	job.Outputs = []string{path}
	job.Files = s.servedFile(path)
	s.completed(w, job)
}

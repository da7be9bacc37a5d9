package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/suggest"
	"github.com/sa-platform/sa/pkg/tracker"
	"github.com/sa-platform/sa/pkg/validate"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"sa_generate_image":    handleGenerateImage,
	"sa_generate_speech":   handleGenerateSpeech,
	"sa_generate_video":    handleGenerateVideo,
	"sa_slideshow":         handleSlideshow,
	"sa_validate":          handleValidate,
	"sa_stats":             handleStats,
	"sa_cache_stats":       handleCacheStats,
	"sa_clear_cache":       handleClearCache,
	"sa_history":           handleHistory,
	"sa_improve_prompt":    handleImprovePrompt,
	"sa_prompt_variations": handlePromptVariations,
	"sa_generate_script":   handleGenerateScript,
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var allTools = []ToolDefinition{
	{
		Name:        "sa_generate_image",
		Description: "Generate images from a text prompt. Returns the image URLs.",
		InputSchema: schema([]string{"prompt"}, map[string]any{
			"prompt":          prop("string", "What to draw (5-1000 characters)"),
			"negative_prompt": prop("string", "What to avoid (optional)"),
			"width":           prop("integer", "Width in pixels, 256-2048, multiple of 64 (default 1024)"),
			"height":          prop("integer", "Height in pixels, 256-2048, multiple of 64 (default 1024)"),
			"num_outputs":     prop("integer", "Number of images, 1-10 (default 1)"),
			"use_cache":       prop("boolean", "Reuse a cached result (default true)"),
		}),
	},
	{
		Name:        "sa_generate_speech",
		Description: "Convert text to speech. Falls back to the free engine when the primary is unavailable. Returns the audio file path.",
		InputSchema: schema([]string{"text"}, map[string]any{
			"text":        prop("string", "Text to speak (3-5000 characters)"),
			"voice":       prop("string", "Voice name (default Adam)"),
			"output_path": prop("string", "Where to write the MP3 (optional)"),
			"use_cache":   prop("boolean", "Reuse a cached result (default true)"),
		}),
	},
	{
		Name:        "sa_generate_video",
		Description: "Generate a short video clip from a text prompt. Returns the video URL.",
		InputSchema: schema([]string{"prompt"}, map[string]any{
			"prompt":    prop("string", "Scene description (10-500 characters)"),
			"duration":  prop("integer", "Length in seconds (default 5)"),
			"fps":       prop("integer", "Frames per second (default 24)"),
			"use_cache": prop("boolean", "Reuse a cached result (default true)"),
		}),
	},
	{
		Name:        "sa_slideshow",
		Description: "Build an MP4 slideshow from local images. Returns the video path.",
		InputSchema: schema([]string{"images"}, map[string]any{
			"images":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Local image paths in order"},
			"seconds_per_image": prop("integer", "Seconds each image is shown (default 3)"),
			"output_path":       prop("string", "Where to write the MP4 (optional)"),
		}),
	},
	{
		Name:        "sa_validate",
		Description: "Check a prompt or narration text without generating anything.",
		InputSchema: schema([]string{"kind", "text"}, map[string]any{
			"kind": map[string]any{"type": "string", "enum": []string{"image", "audio", "video"}, "description": "Which generator the text is for"},
			"text": prop("string", "Prompt or narration text"),
		}),
	},
	{
		Name:        "sa_stats",
		Description: "Show generated, cached and failed counters for every generator.",
		InputSchema: schema(nil, map[string]any{}),
	},
	{
		Name:        "sa_cache_stats",
		Description: "Show cache entries, hits and misses per generator.",
		InputSchema: schema(nil, map[string]any{}),
	},
	{
		Name:        "sa_clear_cache",
		Description: "Remove cached results of one generator, or all of them.",
		InputSchema: schema(nil, map[string]any{
			"kind": prop("string", "image, audio, video or all (default all)"),
		}),
	},
	{
		Name:        "sa_history",
		Description: "Show recent generations, or a per-kind summary.",
		InputSchema: schema(nil, map[string]any{
			"limit":   prop("integer", "Number of recent records (default 20)"),
			"summary": prop("boolean", "Return aggregated counts instead of records"),
			"kind":    prop("string", "Filter the summary by kind (optional)"),
		}),
	},
	{
		Name:        "sa_improve_prompt",
		Description: "Rewrite a prompt so it produces better results.",
		InputSchema: schema([]string{"prompt"}, map[string]any{
			"prompt":       prop("string", "Prompt to improve"),
			"content_type": map[string]any{"type": "string", "enum": []string{"image", "audio", "video"}, "description": "What the prompt is for (default image)"},
		}),
	},
	{
		Name:        "sa_prompt_variations",
		Description: "Suggest alternative versions of a prompt.",
		InputSchema: schema([]string{"prompt"}, map[string]any{
			"prompt": prop("string", "Prompt to vary"),
			"count":  prop("integer", "Number of variations, 1-10 (default 3)"),
		}),
	},
	{
		Name:        "sa_generate_script",
		Description: "Draft a short video script as scenes with narration.",
		InputSchema: schema([]string{"idea"}, map[string]any{
			"idea":       prop("string", "What the video is about"),
			"num_scenes": prop("integer", "Number of scenes, 1-10 (default 5)"),
		}),
	},
}

func parseArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func useCache(v *bool) bool { return v == nil || *v }

// outputPath returns path, or a fresh file under the server's output
// directory when path is empty.
func (s *Server) outputPath(path, ext string) (string, error) {
	if path != "" {
		return path, nil
	}
	if err := os.MkdirAll(s.files, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(s.files, uuid.NewString()+ext), nil
}

func invalid(res models.ValidationResult) ToolCallResult {
	return errorResult("Invalid input:\n" + formatValidation(res))
}

type imageArgs struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumOutputs     int    `json:"num_outputs"`
	UseCache       *bool  `json:"use_cache"`
}

func handleGenerateImage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args imageArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	req := models.NewImageRequest(args.Prompt)
	req.NegativePrompt = args.NegativePrompt
	if args.Width > 0 {
		req.Width = args.Width
	}
	if args.Height > 0 {
		req.Height = args.Height
	}
	if args.NumOutputs != 0 {
		req.NumOutputs = args.NumOutputs
	}
	req.UseCache = useCache(args.UseCache)

	if res := validate.ImagePrompt(req.Prompt, req.NegativePrompt); !res.Valid {
		s.svc.Image.RecordInvalid(ctx, req.Prompt, res.Issues)
		return invalid(res)
	}
	if res := validate.Dimensions(req.Width, req.Height); !res.Valid {
		s.svc.Image.RecordInvalid(ctx, req.Prompt, res.Issues)
		return invalid(res)
	}
	if err := validate.NumOutputs(req.NumOutputs); err != nil {
		s.svc.Image.RecordInvalid(ctx, req.Prompt, []string{err.Error()})
		return errorResult(err.Error())
	}

	urls := s.svc.Image.Generate(ctx, req, nil)
	if len(urls) == 0 {
		return errorResult("Image generation failed. Check that REPLICATE_API_TOKEN is set and see the server log.")
	}
	return textResult(strings.Join(urls, "\n"))
}

type speechArgs struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	OutputPath string `json:"output_path"`
	UseCache   *bool  `json:"use_cache"`
}

func handleGenerateSpeech(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args speechArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if res := validate.SpeechText(args.Text); !res.Valid {
		s.svc.Audio.RecordInvalid(ctx, args.Text, res.Issues)
		return invalid(res)
	}
	out, err := s.outputPath(args.OutputPath, ".mp3")
	if err != nil {
		return errorResult(err.Error())
	}
	req := models.NewSpeechRequest(args.Text, out)
	if args.Voice != "" {
		req.Voice = args.Voice
	}
	req.UseCache = useCache(args.UseCache)

	path := s.svc.Audio.GenerateSpeech(ctx, req, nil)
	if path == "" {
		return errorResult("Speech generation failed on every engine. See the server log.")
	}
	return textResult(path)
}

type videoArgs struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	FPS      int    `json:"fps"`
	UseCache *bool  `json:"use_cache"`
}

func handleGenerateVideo(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args videoArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	req := models.NewVideoRequest(args.Prompt)
	if args.Duration != 0 {
		req.Duration = args.Duration
	}
	if args.FPS > 0 {
		req.FPS = args.FPS
	}
	req.UseCache = useCache(args.UseCache)

	if res := validate.VideoPrompt(req.Prompt); !res.Valid {
		s.svc.Video.RecordInvalid(ctx, req.Prompt, res.Issues)
		return invalid(res)
	}
	if err := validate.Duration(req.Duration); err != nil {
		s.svc.Video.RecordInvalid(ctx, req.Prompt, []string{err.Error()})
		return errorResult(err.Error())
	}

	url := s.svc.Video.GenerateFromText(ctx, req, nil)
	if url == "" {
		return errorResult("Video generation failed. Check that REPLICATE_API_TOKEN is set and see the server log.")
	}
	return textResult(url)
}

type slideshowArgs struct {
	Images          []string `json:"images"`
	SecondsPerImage int      `json:"seconds_per_image"`
	OutputPath      string   `json:"output_path"`
}

func handleSlideshow(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args slideshowArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if len(args.Images) == 0 {
		s.svc.Video.RecordInvalid(ctx, "slideshow", []string{"images is required"})
		return errorResult("images is required")
	}
	if args.SecondsPerImage == 0 {
		args.SecondsPerImage = 3
	}
	if err := validate.Duration(args.SecondsPerImage); err != nil {
		s.svc.Video.RecordInvalid(ctx, "slideshow", []string{err.Error()})
		return errorResult(err.Error())
	}
	out, err := s.outputPath(args.OutputPath, ".mp4")
	if err != nil {
		return errorResult(err.Error())
	}
	path := s.svc.Video.CreateSlideshow(ctx, args.Images, args.SecondsPerImage, out, 0, nil)
	if path == "" {
		return errorResult("Slideshow creation failed. Check the image paths and that ffmpeg is installed.")
	}
	return textResult(path)
}

type validateArgs struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func handleValidate(_ context.Context, _ *Server, raw json.RawMessage) ToolCallResult {
	var args validateArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	var res models.ValidationResult
	switch models.Kind(args.Kind) {
	case models.KindImage:
		res = validate.ImagePrompt(args.Text, "")
	case models.KindAudio:
		res = validate.SpeechText(args.Text)
	case models.KindVideo:
		res = validate.VideoPrompt(args.Text)
	default:
		return errorResult(fmt.Sprintf("unknown kind %q: want image, audio or video", args.Kind))
	}
	return textResult(formatValidation(res))
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatStats(s.svc.Stats()))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.svc.CacheStats(ctx)))
}

type clearArgs struct {
	Kind string `json:"kind"`
}

func handleClearCache(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args clearArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	n, err := s.svc.ClearCache(ctx, args.Kind)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(fmt.Sprintf("Cleared %d cache entries.", n))
}

type historyArgs struct {
	Limit   int    `json:"limit"`
	Summary bool   `json:"summary"`
	Kind    string `json:"kind"`
}

func handleHistory(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.svc.History == nil {
		return textResult("History is disabled.")
	}
	var args historyArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.Summary {
		rows, err := s.svc.History.Summary(ctx, models.Kind(args.Kind))
		if err != nil {
			return errorResult("Error fetching history summary: " + err.Error())
		}
		return textResult(formatSummary(rows))
	}
	if args.Limit <= 0 {
		args.Limit = tracker.DefaultRecentLimit
	}
	recs, err := s.svc.History.Recent(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching history: " + err.Error())
	}
	return textResult(formatRecords(recs))
}

type improveArgs struct {
	Prompt      string `json:"prompt"`
	ContentType string `json:"content_type"`
}

func handleImprovePrompt(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args improveArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return errorResult("prompt is required")
	}
	kind := models.Kind(args.ContentType)
	if kind == "" {
		kind = models.KindImage
	}
	return textResult(s.svc.Suggest.ImprovePrompt(ctx, args.Prompt, kind))
}

type variationArgs struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
}

func handlePromptVariations(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args variationArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return errorResult("prompt is required")
	}
	if args.Count == 0 {
		args.Count = 3
	}
	if args.Count < 1 || args.Count > suggest.MaxVariations {
		return errorResult(fmt.Sprintf("count must be between 1 and %d", suggest.MaxVariations))
	}
	return textResult(formatList(s.svc.Suggest.Variations(ctx, args.Prompt, args.Count)))
}

type scriptArgs struct {
	Idea      string `json:"idea"`
	NumScenes int    `json:"num_scenes"`
}

func handleGenerateScript(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args scriptArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if strings.TrimSpace(args.Idea) == "" {
		return errorResult("idea is required")
	}
	if args.NumScenes == 0 {
		args.NumScenes = suggest.DefaultScenes
	}
	if args.NumScenes < 1 || args.NumScenes > suggest.MaxScenes {
		return errorResult(fmt.Sprintf("num_scenes must be between 1 and %d", suggest.MaxScenes))
	}
	return textResult(formatScript(s.svc.Suggest.Script(ctx, args.Idea, args.NumScenes)))
}

// Package suggest proposes prompts, variations, styles and short video
// scripts. A chat model is used when one is configured; every method has a
// deterministic template answer for when it is not, or when it fails.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sa-platform/sa/pkg/metrics"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/provider/openai"
)

// Limits on list sizes.
const (
	MaxVariations = 10
	MaxScenes     = 10
	DefaultScenes = 5
	maxStyles     = 5
)

// memoTTL bounds how long a model answer is reused for the same input.
const memoTTL = time.Hour

// Completer answers one chat prompt.
type Completer interface {
	Name() string
	Available() bool
	Complete(ctx context.Context, p openai.Prompt) (string, error)
}

// Scene is one step of a generated video script.
type Scene struct {
	Visual    string `json:"visual"`
	Narration string `json:"narration"`
}

// Mood describes background music for a scene.
type Mood struct {
	Mood  string `json:"mood"`
	Tempo string `json:"tempo"`
	Genre string `json:"genre"`
}

// Engine produces suggestions.
type Engine struct {
	llm    Completer
	memo   *gocache.Cache
	logger *slog.Logger
}

// New creates an Engine. llm may be nil, in which case only the template
// answers are used.
func New(llm Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		llm:    llm,
		memo:   gocache.New(memoTTL, 2*memoTTL),
		logger: logger.With("component", "suggest"),
	}
}

// Available reports whether a chat model backs the engine.
func (e *Engine) Available() bool {
	return e.llm != nil && e.llm.Available()
}

// ask sends p to the model. It returns "" when no model is configured or
// the call fails; callers then use their template answer.
func (e *Engine) ask(ctx context.Context, op string, p openai.Prompt) string {
	if !e.Available() {
		return ""
	}
	start := time.Now()
	out, err := e.llm.Complete(ctx, p)
	metrics.ObserveProvider(e.llm.Name(), time.Since(start), err)
	if err != nil {
		e.logger.Warn("suggestion model failed, using template", "op", op, "err", err)
		return ""
	}
	return out
}

// ImprovePrompt returns a more detailed version of prompt for kind. Model
// answers are memoized per kind and prompt prefix.
func (e *Engine) ImprovePrompt(ctx context.Context, prompt string, kind models.Kind) string {
	key := "improve:" + string(kind) + ":" + prefix(prompt, 50)
	if v, ok := e.memo.Get(key); ok {
		return v.(string)
	}
	out := e.ask(ctx, "improve", openai.Prompt{
		System: fmt.Sprintf("You are an expert in creating detailed prompts for %s generation. "+
			"Improve the user's prompt to be more detailed and effective. Keep it concise.", kind),
		User:        "Improve this prompt: " + prompt,
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if out == "" {
		return improveTemplate(prompt, kind)
	}
	e.memo.SetDefault(key, out)
	return out
}

var qualitySuffix = map[models.Kind]string{
	models.KindImage: "detailed, high quality, professional, 8k resolution",
	models.KindVideo: "cinematic, smooth motion, high quality, 4k",
	models.KindAudio: "clear, professional quality, well-paced",
}

func improveTemplate(prompt string, kind models.Kind) string {
	suffix, ok := qualitySuffix[kind]
	if !ok {
		suffix = "high quality"
	}
	return prompt + ", " + suffix
}

var variationStyles = []string{
	"realistic style",
	"artistic style",
	"modern style",
	"classic style",
	"minimalist style",
	"detailed style",
}

// Variations returns up to count rewrites of prompt, capped at
// MaxVariations. The template answer offers at most six.
func (e *Engine) Variations(ctx context.Context, prompt string, count int) []string {
	count = clamp(count, 1, MaxVariations)
	if strings.TrimSpace(prompt) == "" {
		return variationTemplate("creative scene", count)
	}
	out := e.ask(ctx, "variations", openai.Prompt{
		System:      "Generate creative variations of the given prompt. Each variation should be on a new line and numbered.",
		User:        fmt.Sprintf("Generate %d variations of: %s", count, prompt),
		MaxTokens:   300,
		Temperature: 0.8,
	})
	if list := listLines(out); len(list) > 0 {
		return head(list, count)
	}
	return variationTemplate(prompt, count)
}

func variationTemplate(prompt string, count int) []string {
	styles := head(variationStyles, count)
	out := make([]string, len(styles))
	for i, s := range styles {
		out[i] = prompt + " in " + s
	}
	return out
}

// NextScenes proposes how a video could continue after scene.
func (e *Engine) NextScenes(ctx context.Context, scene string) []string {
	out := e.ask(ctx, "next_scenes", openai.Prompt{
		System:    "You are a creative storyteller. Suggest logical next scenes.",
		User:      "Current scene: " + scene + "\nSuggest 3 possible next scenes:",
		MaxTokens: 200,
	})
	if list := listLines(out); len(list) > 0 {
		return list
	}
	return []string{
		"Continue from: " + scene,
		"Transition to a different location",
		"Close-up detail from the scene",
	}
}

// MusicMood suggests background music for a scene description.
func (e *Engine) MusicMood(ctx context.Context, scene string) Mood {
	mood := Mood{Mood: "calm", Tempo: "medium", Genre: "ambient"}
	out := e.ask(ctx, "music_mood", openai.Prompt{
		System:    "Suggest appropriate background music characteristics.",
		User:      "Scene: " + scene + "\nSuggest: mood, tempo, genre",
		MaxTokens: 100,
	})
	for _, line := range strings.Split(strings.ToLower(out), "\n") {
		_, value, ok := strings.Cut(line, ":")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		switch {
		case strings.Contains(line, "mood"):
			mood.Mood = value
		case strings.Contains(line, "tempo"):
			mood.Tempo = value
		case strings.Contains(line, "genre"):
			mood.Genre = value
		}
	}
	return mood
}

// Script turns an idea into up to n scenes, capped at MaxScenes. The
// template answer has at most five.
func (e *Engine) Script(ctx context.Context, idea string, n int) []Scene {
	n = clamp(n, 1, MaxScenes)
	out := e.ask(ctx, "script", openai.Prompt{
		System: "Create a video script with scene descriptions and narration.",
		User: fmt.Sprintf("Create a %d-scene video script for: %s\n"+
			"Format each scene as: Scene X: [visual description] | Narration: [text]", n, idea),
		MaxTokens: 500,
	})
	if scenes := parseScript(out); len(scenes) > 0 {
		return head(scenes, n)
	}
	return scriptTemplate(idea, n)
}

// parseScript reads "Scene 1: visual | Narration: text" lines.
func parseScript(text string) []Scene {
	var scenes []Scene
	for _, line := range strings.Split(text, "\n") {
		visual, narration, ok := strings.Cut(line, "|")
		if !ok || !strings.Contains(line, ":") {
			continue
		}
		s := Scene{Visual: afterColon(visual), Narration: afterColon(narration)}
		if s.Visual != "" || s.Narration != "" {
			scenes = append(scenes, s)
		}
	}
	return scenes
}

func scriptTemplate(idea string, n int) []Scene {
	base := []Scene{
		{Visual: "Opening scene: " + idea, Narration: "Introduction to " + idea},
		{Visual: "Main content about " + idea, Narration: "Main story unfolds"},
		{Visual: "Climax or key moment", Narration: "The most important part"},
		{Visual: "Resolution", Narration: "How things conclude"},
		{Visual: "Closing scene", Narration: "Final thoughts"},
	}
	return head(base, n)
}

// Segments turns the narration of scenes into narration segments read with
// voice. Scenes without narration are dropped.
func Segments(scenes []Scene, voice string) []models.ScriptSegment {
	var out []models.ScriptSegment
	for _, s := range scenes {
		if strings.TrimSpace(s.Narration) == "" {
			continue
		}
		out = append(out, models.ScriptSegment{Text: s.Narration, Voice: voice})
	}
	return out
}

var styleTemplates = map[models.Kind][]string{
	models.KindImage: {"realistic", "artistic", "anime", "oil painting", "watercolor"},
	models.KindVideo: {"cinematic", "documentary", "animated", "time-lapse", "slow-motion"},
	models.KindAudio: {"natural", "dramatic", "calm", "energetic", "professional"},
}

// Styles suggests up to five artistic styles for prompt.
func (e *Engine) Styles(ctx context.Context, prompt string, kind models.Kind) []string {
	out := e.ask(ctx, "styles", openai.Prompt{
		System:      fmt.Sprintf("Suggest 5 artistic styles for %s generation", kind),
		User:        "Suggest styles for: " + prompt,
		MaxTokens:   100,
		Temperature: 0.7,
	})
	var styles []string
	for _, s := range strings.Split(out, ",") {
		if s = strings.TrimSpace(s); s != "" {
			styles = append(styles, s)
		}
	}
	if len(styles) > 0 {
		return head(styles, maxStyles)
	}
	if t, ok := styleTemplates[kind]; ok {
		return append([]string(nil), t...)
	}
	return []string{"default", "creative", "professional"}
}

var themes = []string{
	"nature", "technology", "space", "fantasy", "urban",
	"abstract", "animals", "landscape", "portrait", "food",
	"architecture", "underwater", "sci-fi", "historical", "sports",
	"art", "music", "education", "business", "health",
}

// Themes lists the themes offered for prompt generation.
func Themes() []string {
	return append([]string(nil), themes...)
}

var themeTemplates = map[string]string{
	"nature":     "Beautiful natural landscape with %s, vibrant colors, peaceful atmosphere",
	"technology": "Futuristic %s scene, high-tech environment, modern design",
	"space":      "Cosmic %s view, stars and galaxies, deep space exploration",
}

// FromTheme writes one prompt for theme.
func (e *Engine) FromTheme(ctx context.Context, theme string, kind models.Kind) string {
	out := e.ask(ctx, "theme", openai.Prompt{
		System:      fmt.Sprintf("Generate a creative and detailed prompt for %s generation based on the theme: %s", kind, theme),
		User:        fmt.Sprintf("Create a %s prompt for theme: %s", kind, theme),
		MaxTokens:   150,
		Temperature: 0.8,
	})
	if out != "" {
		return out
	}
	return themeTemplate(theme)
}

func themeTemplate(theme string) string {
	tmpl, ok := themeTemplates[theme]
	if !ok {
		tmpl = "Creative %s scene, high quality, detailed"
	}
	return fmt.Sprintf(tmpl, theme)
}

// ThemePrompts writes count prompts for theme.
func (e *Engine) ThemePrompts(ctx context.Context, theme string, count int, kind models.Kind) []string {
	count = clamp(count, 1, MaxVariations)
	out := e.ask(ctx, "theme_prompts", openai.Prompt{
		System:      fmt.Sprintf("Generate %d creative prompts for %s generation", count, kind),
		User:        fmt.Sprintf("Generate %d prompts for theme: %s", count, theme),
		MaxTokens:   300,
		Temperature: 0.8,
	})
	if list := listLines(out); len(list) > 0 {
		return head(list, count)
	}
	list := make([]string, count)
	for i := range list {
		list[i] = themeTemplate(theme)
	}
	return list
}

// ClearCache drops memoized model answers and returns how many there were.
func (e *Engine) ClearCache() int {
	n := e.memo.ItemCount()
	e.memo.Flush()
	return n
}

// CacheSize returns the number of memoized model answers.
func (e *Engine) CacheSize() int { return e.memo.ItemCount() }

// listLines splits a model answer into non-empty lines with any leading
// "1." or "2)" numbering or "-" bullet removed.
func listLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = stripMarker(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func stripMarker(line string) string {
	line = strings.TrimSpace(line)
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:])
	}
	return line
}

func afterColon(s string) string {
	if _, v, ok := strings.Cut(s, ":"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s)
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func head[T any](s []T, n int) []T {
	if n < len(s) {
		s = s[:n]
	}
	return append([]T(nil), s...)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

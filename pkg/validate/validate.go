// Package validate checks generation inputs before any cache or provider
// work happens. Every function is pure.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sa-platform/sa/pkg/models"
)

// Limits applied by the validators.
const (
	MinImagePrompt    = 5
	MaxImagePrompt    = 1000
	MaxNegativePrompt = 500
	MinVideoPrompt    = 10
	MaxVideoPrompt    = 500
	MinSpeechText     = 3
	MaxSpeechText     = 5000
	MinDimension      = 256
	MaxDimension      = 2048
	DimensionStep     = 64
	MinOutputs        = 1
	MaxOutputs        = 10
)

var (
	ErrNumOutputs = errors.New("num_outputs out of range")
	ErrVolume     = errors.New("volume out of range")
	ErrDuration   = errors.New("duration must be at least 1 second")
)

var (
	imageKeywords = []string{"high quality", "detailed", "professional", "8k", "4k"}
	videoKeywords = []string{"cinematic", "high quality", "4k", "detailed", "smooth"}
)

// ImagePrompt validates an image prompt and its optional negative prompt.
func ImagePrompt(prompt, negative string) models.ValidationResult {
	r := newResult()
	n := utf8.RuneCountInString(prompt)

	if strings.TrimSpace(prompt) == "" {
		r.Issues = append(r.Issues, "Prompt is empty")
	} else if n < MinImagePrompt {
		r.Issues = append(r.Issues, "Prompt is too short (minimum 5 characters)")
		r.Suggestions = append(r.Suggestions, "Add more descriptive details")
	}
	if n > MaxImagePrompt {
		r.Issues = append(r.Issues, "Prompt is too long (maximum 1000 characters)")
		r.Suggestions = append(r.Suggestions, "Focus on key visual elements")
	}
	neg := utf8.RuneCountInString(negative)
	if neg > MaxNegativePrompt {
		r.Issues = append(r.Issues, "Negative prompt is too long (maximum 500 characters)")
	}
	if !containsAny(prompt, imageKeywords) {
		r.Suggestions = append(r.Suggestions, "Consider adding quality keywords like 'high quality' or 'detailed'")
	}

	r.Length = n
	r.NegativeLength = neg
	return done(r)
}

// Dimensions validates an image size. The multiple-of-64 rule is only
// reported for sizes inside the accepted range so an out-of-range size
// produces a single issue.
func Dimensions(width, height int) models.ValidationResult {
	r := newResult()
	small := width < MinDimension || height < MinDimension
	large := width > MaxDimension || height > MaxDimension

	if small {
		r.Issues = append(r.Issues, "Dimensions too small (minimum 256x256)")
	}
	if large {
		r.Issues = append(r.Issues, "Dimensions too large (maximum 2048x2048)")
	}
	if !small && !large && (width%DimensionStep != 0 || height%DimensionStep != 0) {
		r.Issues = append(r.Issues, "Dimensions should be multiples of 64")
	}

	r.Width = width
	r.Height = height
	return done(r)
}

// VideoPrompt validates a text-to-video prompt.
func VideoPrompt(prompt string) models.ValidationResult {
	r := newResult()
	n := utf8.RuneCountInString(prompt)

	if strings.TrimSpace(prompt) == "" {
		r.Issues = append(r.Issues, "Prompt is empty")
	} else if n < MinVideoPrompt {
		r.Issues = append(r.Issues, "Prompt is too short (minimum 10 characters)")
		r.Suggestions = append(r.Suggestions, "Add more details about scene, lighting, camera angle")
	}
	if n > MaxVideoPrompt {
		r.Issues = append(r.Issues, "Prompt is too long (maximum 500 characters)")
		r.Suggestions = append(r.Suggestions, "Focus on key visual elements")
	}
	if !containsAny(prompt, videoKeywords) {
		r.Suggestions = append(r.Suggestions, "Consider adding quality keywords like 'cinematic' or '4k'")
	}

	r.Length = n
	return done(r)
}

// SpeechText validates narration text.
func SpeechText(text string) models.ValidationResult {
	r := newResult()
	n := utf8.RuneCountInString(text)

	if strings.TrimSpace(text) == "" {
		r.Issues = append(r.Issues, "Text is empty")
	} else if n < MinSpeechText {
		r.Issues = append(r.Issues, "Text is too short (minimum 3 characters)")
	}
	if n > MaxSpeechText {
		r.Issues = append(r.Issues, "Text is too long (maximum 5000 characters)")
		r.Suggestions = append(r.Suggestions, "Split text into multiple segments")
	}
	if isUpper(text) {
		r.Suggestions = append(r.Suggestions, "Text in all caps may sound unnatural")
	}

	r.Length = n
	r.WordCount = len(strings.Fields(text))
	return done(r)
}

// NumOutputs rejects image output counts outside [1, 10].
func NumOutputs(n int) error {
	if n < MinOutputs || n > MaxOutputs {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrNumOutputs, n, MinOutputs, MaxOutputs)
	}
	return nil
}

// Volume rejects linear volume fractions outside [0, 1].
func Volume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %g (must be between 0.0 and 1.0)", ErrVolume, v)
	}
	return nil
}

// Duration rejects per-clip durations shorter than one second.
func Duration(seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("%w: %d", ErrDuration, seconds)
	}
	return nil
}

func newResult() models.ValidationResult {
	return models.ValidationResult{Issues: []string{}, Suggestions: []string{}}
}

func done(r models.ValidationResult) models.ValidationResult {
	r.Valid = len(r.Issues) == 0
	return r
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isUpper reports whether s has at least one cased letter and no lower-case
// ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

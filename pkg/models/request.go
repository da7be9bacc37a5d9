package models

// ProgressFunc receives human-readable status updates. It is advisory only.
type ProgressFunc func(status string)

// Notify calls f with status when f is non-nil.
func (f ProgressFunc) Notify(status string) {
	if f != nil {
		f(status)
	}
}

// Defaults shared by callers that build requests.
const (
	DefaultImageModel  = "black-forest-labs/flux-schnell"
	DefaultVideoModel  = "anotherjesse/zeroscope-v2-xl"
	DefaultVoice       = "Adam"
	DefaultAudioModel  = "eleven_multilingual_v2"
	DefaultImageSize   = 1024
	DefaultVideoFPS    = 24
	DefaultVideoLength = 5
)

// ImageRequest is a text-to-image generation request.
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumOutputs     int    `json:"num_outputs"`
	Model          string `json:"model,omitempty"`
	UseCache       bool   `json:"use_cache"`
}

// NewImageRequest returns a request with the usual defaults filled in.
func NewImageRequest(prompt string) ImageRequest {
	return ImageRequest{
		Prompt:     prompt,
		Width:      DefaultImageSize,
		Height:     DefaultImageSize,
		NumOutputs: 1,
		Model:      DefaultImageModel,
		UseCache:   true,
	}
}

// SpeechRequest is a text-to-speech request.
type SpeechRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	Model      string `json:"model,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	UseCache   bool   `json:"use_cache"`
}

// NewSpeechRequest returns a request with the usual defaults filled in.
func NewSpeechRequest(text, outputPath string) SpeechRequest {
	if outputPath == "" {
		outputPath = "output.mp3"
	}
	return SpeechRequest{
		Text:       text,
		Voice:      DefaultVoice,
		Model:      DefaultAudioModel,
		OutputPath: outputPath,
		UseCache:   true,
	}
}

// VideoRequest is a text-to-video request. Duration is in seconds.
type VideoRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	FPS      int    `json:"fps"`
	UseCache bool   `json:"use_cache"`
}

// NewVideoRequest returns a request with the usual defaults filled in.
func NewVideoRequest(prompt string) VideoRequest {
	return VideoRequest{
		Prompt:   prompt,
		Duration: DefaultVideoLength,
		FPS:      DefaultVideoFPS,
		UseCache: true,
	}
}

// ScriptSegment is one piece of a narration script.
type ScriptSegment struct {
	Text  string `json:"text" yaml:"text"`
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// Package media assembles and edits audio and video files: slideshows,
// audio track replacement, background mixing and concatenation.
package media

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNoDuration is returned when a file reports a zero or unknown length.
var ErrNoDuration = errors.New("media has no duration")

// Editor performs media post-processing.
type Editor interface {
	// Duration returns the playing time of path.
	Duration(ctx context.Context, path string) (time.Duration, error)

	// Slideshow renders images in order, each shown for perImage, at fps.
	Slideshow(ctx context.Context, images []string, perImage time.Duration, fps int, out string) error

	// ReplaceAudio swaps the audio track of video for audio, looped or
	// trimmed to exactly the video's length.
	ReplaceAudio(ctx context.Context, video, audio, out string) error

	// MixIntoVideo sets the audio of video to voice over background. The
	// background is attenuated by gainDB and both tracks are fitted to the
	// video's length.
	MixIntoVideo(ctx context.Context, video, voice, background string, gainDB float64, out string) error

	// MixAudio overlays music, attenuated by gainDB and fitted to the voice
	// length, under voice.
	MixAudio(ctx context.Context, voice, music string, gainDB float64, out string) error

	// Concat joins audio files end to end.
	Concat(ctx context.Context, inputs []string, out string) error
}

// PlanLoop returns how many times a track of length source must be played
// back to back to cover target. It is 1 when source already covers target
// and 0 when source is empty.
func PlanLoop(source, target time.Duration) int {
	if source <= 0 {
		return 0
	}
	if source >= target {
		return 1
	}
	return int(math.Ceil(float64(target) / float64(source)))
}

// GainDB converts a linear volume fraction in [0, 1] to the decibel offset
// applied to background tracks.
func GainDB(volume float64) float64 {
	return -20 * (1 - volume)
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sa-platform/sa/pkg/config"
)

// Slideshow frame size. Images are scaled to fit and letterboxed.
const (
	SlideWidth  = 1280
	SlideHeight = 720
)

// runFunc executes a binary and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binary comes from config, arguments are built here
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FFmpeg implements Editor by running ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  *slog.Logger
	run     runFunc
}

var _ Editor = (*FFmpeg)(nil)

// NewFFmpeg creates an editor using the binaries and timeout from cfg.
func NewFFmpeg(cfg config.MediaConfig, logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FFmpeg{
		ffmpeg:  cfg.FFmpeg,
		ffprobe: cfg.FFprobe,
		timeout: cfg.Timeout.Std(),
		logger:  logger.With("component", "media"),
		run:     execRun,
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if f.timeout <= 0 {
		f.timeout = 5 * time.Minute
	}
	return f
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.ffmpeg); err != nil {
		return false
	}
	_, err := exec.LookPath(f.ffprobe)
	return err == nil
}

// Duration asks ffprobe for the container duration.
func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := f.run(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w - output: %s", path, err, strings.TrimSpace(string(out)))
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrNoDuration)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Slideshow writes a concat list giving each image perImage seconds and
// renders it with libx264.
func (f *FFmpeg) Slideshow(ctx context.Context, images []string, perImage time.Duration, fps int, out string) error {
	if len(images) == 0 {
		return fmt.Errorf("slideshow: no images")
	}
	list, cleanup, err := writeConcatList(images, perImage)
	if err != nil {
		return err
	}
	defer cleanup()

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d,format=yuv420p",
		SlideWidth, SlideHeight, SlideWidth, SlideHeight, fps,
	)
	return f.ffmpegRun(ctx, out,
		"-f", "concat", "-safe", "0", "-i", list,
		"-vf", vf,
		"-c:v", "libx264",
		"-r", strconv.Itoa(fps),
		out,
	)
}

// ReplaceAudio loops audio as many times as needed and cuts the result at
// the video's exact length.
func (f *FFmpeg) ReplaceAudio(ctx context.Context, video, audio, out string) error {
	videoLen, err := f.Duration(ctx, video)
	if err != nil {
		return err
	}
	audioLen, err := f.Duration(ctx, audio)
	if err != nil {
		return err
	}
	repeats := PlanLoop(audioLen, videoLen)
	f.logger.Debug("fitting audio to video", "video", videoLen, "audio", audioLen, "repeats", repeats)

	return f.ffmpegRun(ctx, out,
		"-i", video,
		"-stream_loop", strconv.Itoa(repeats-1), "-i", audio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "libx264", "-c:a", "aac",
		"-t", seconds(videoLen),
		out,
	)
}

// MixIntoVideo pads the voice with silence, loops and attenuates the
// background, and mixes both over the video for its full length.
func (f *FFmpeg) MixIntoVideo(ctx context.Context, video, voice, background string, gainDB float64, out string) error {
	videoLen, err := f.Duration(ctx, video)
	if err != nil {
		return err
	}
	bgLen, err := f.Duration(ctx, background)
	if err != nil {
		return err
	}
	repeats := PlanLoop(bgLen, videoLen)
	length := seconds(videoLen)

	filter := fmt.Sprintf(
		"[1:a]apad,atrim=0:%[1]s[vo];[2:a]volume=%[2]sdB,atrim=0:%[1]s[bg];[vo][bg]amix=inputs=2:duration=first:normalize=0[a]",
		length, decibels(gainDB),
	)
	return f.ffmpegRun(ctx, out,
		"-i", video,
		"-i", voice,
		"-stream_loop", strconv.Itoa(repeats-1), "-i", background,
		"-filter_complex", filter,
		"-map", "0:v:0", "-map", "[a]",
		"-c:v", "libx264", "-c:a", "aac",
		"-t", length,
		out,
	)
}

// MixAudio overlays looped, attenuated music under voice and exports MP3.
func (f *FFmpeg) MixAudio(ctx context.Context, voice, music string, gainDB float64, out string) error {
	voiceLen, err := f.Duration(ctx, voice)
	if err != nil {
		return err
	}
	musicLen, err := f.Duration(ctx, music)
	if err != nil {
		return err
	}
	repeats := PlanLoop(musicLen, voiceLen)
	length := seconds(voiceLen)

	filter := fmt.Sprintf(
		"[1:a]volume=%sdB,atrim=0:%s[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[a]",
		decibels(gainDB), length,
	)
	return f.ffmpegRun(ctx, out,
		"-i", voice,
		"-stream_loop", strconv.Itoa(repeats-1), "-i", music,
		"-filter_complex", filter,
		"-map", "[a]",
		"-c:a", "libmp3lame",
		"-t", length,
		out,
	)
}

// Concat joins audio files in order and re-encodes them as MP3.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	list, cleanup, err := writeConcatList(inputs, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	return f.ffmpegRun(ctx, out,
		"-f", "concat", "-safe", "0", "-i", list,
		"-c:a", "libmp3lame",
		out,
	)
}

// ffmpegRun runs ffmpeg with args, overwriting out. A failed run removes any
// partial output.
func (f *FFmpeg) ffmpegRun(ctx context.Context, out string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	start := time.Now()
	output, err := f.run(ctx, f.ffmpeg, full...)
	if err != nil {
		os.Remove(out)
		return fmt.Errorf("ffmpeg execution failed: %w - output: %s", err, strings.TrimSpace(string(output)))
	}
	f.logger.Debug("ffmpeg finished", "out", out, "elapsed", time.Since(start))
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer script. With a positive
// per-item duration the last file is repeated so its duration is honored.
func writeConcatList(paths []string, per time.Duration) (string, func(), error) {
	tmp, err := os.CreateTemp("", "sa-concat-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("create concat list: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
		if per > 0 {
			fmt.Fprintf(&b, "duration %s\n", seconds(per))
		}
	}
	if per > 0 {
		abs, _ := filepath.Abs(paths[len(paths)-1])
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("write concat list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close concat list: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func decibels(db float64) string {
	return strconv.FormatFloat(db, 'f', 2, 64)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sa-platform/sa/pkg/app"
	"github.com/sa-platform/sa/pkg/models"
)

func newVideoCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Text to video, slideshows and soundtrack editing",
	}
	cmd.AddCommand(newVideoTextCmd(c), newSlideshowCmd(c), newAddAudioCmd(c), newVideoMixCmd(c))
	return cmd
}

// runVideo opens services, runs fn and prints the path it returns.
func (c *cli) runVideo(cmd *cobra.Command, fn func(svc *app.Services) string) error {
	svc, err := c.services(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	path := fn(svc)
	if path == "" {
		return errGenerationFailed
	}
	fmt.Fprintln(c.out, path)
	return nil
}

func newVideoTextCmd(c *cli) *cobra.Command {
	var (
		req     = models.NewVideoRequest("")
		noCache bool
		enhance bool
	)
	cmd := &cobra.Command{
		Use:   "text PROMPT",
		Short: "Generate a video clip from a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVideo(cmd, func(svc *app.Services) string {
				req.Prompt = args[0]
				req.UseCache = !noCache
				if enhance {
					req.Prompt = svc.Video.EnhancePrompt(req.Prompt)
				}
				return svc.Video.GenerateFromText(cmd.Context(), req, c.progress)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.Duration, "duration", req.Duration, "length in seconds")
	f.IntVar(&req.FPS, "fps", req.FPS, "frames per second")
	f.BoolVar(&noCache, "no-cache", false, "skip the cache")
	f.BoolVar(&enhance, "enhance", false, "append cinematic keywords to the prompt")
	return cmd
}

func newSlideshowCmd(c *cli) *cobra.Command {
	var (
		out     string
		seconds int
		fps     int
	)
	cmd := &cobra.Command{
		Use:   "slideshow IMAGE...",
		Short: "Build an MP4 slideshow from images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVideo(cmd, func(svc *app.Services) string {
				return svc.Video.CreateSlideshow(cmd.Context(), args, seconds, out, fps, c.progress)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "slideshow.mp4", "output file")
	cmd.Flags().IntVar(&seconds, "seconds", 3, "seconds per image")
	cmd.Flags().IntVar(&fps, "fps", models.DefaultVideoFPS, "frames per second")
	return cmd
}

func newAddAudioCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "add-audio VIDEO AUDIO",
		Short: "Replace a video's soundtrack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVideo(cmd, func(svc *app.Services) string {
				return svc.Video.AddAudio(cmd.Context(), args[0], args[1], out, c.progress)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "with_audio.mp4", "output file")
	return cmd
}

func newVideoMixCmd(c *cli) *cobra.Command {
	var (
		out    string
		volume float64
	)
	cmd := &cobra.Command{
		Use:   "mix VIDEO VOICE BACKGROUND",
		Short: "Set a voice track with looping background sound on a video",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVideo(cmd, func(svc *app.Services) string {
				return svc.Video.AddBackgroundSounds(cmd.Context(), args[0], args[1], args[2], volume, out, c.progress)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "final.mp4", "output file")
	cmd.Flags().Float64Var(&volume, "volume", 0.3, "background volume (0.0-1.0)")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sa-platform/sa/pkg/models"
)

func newAudioCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Text to speech and audio mixing",
	}
	cmd.AddCommand(newSpeakCmd(c), newVoicesCmd(c), newMixCmd(c), newNarrateCmd(c))
	return cmd
}

func newSpeakCmd(c *cli) *cobra.Command {
	var (
		req     = models.NewSpeechRequest("", "")
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "speak TEXT",
		Short: "Convert text to an MP3 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			req.Text = args[0]
			req.UseCache = !noCache
			path := svc.Audio.GenerateSpeech(ctx, req, c.progress)
			if path == "" {
				return errGenerationFailed
			}
			fmt.Fprintln(c.out, path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.OutputPath, "output", "o", req.OutputPath, "output file")
	f.StringVar(&req.Voice, "voice", req.Voice, "voice name or ID")
	f.StringVar(&req.Model, "model", req.Model, "speech model")
	f.BoolVar(&noCache, "no-cache", false, "skip the cache")
	return cmd
}

func newVoicesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, v := range svc.Audio.Voices(ctx) {
				fmt.Fprintln(c.out, v)
			}
			return nil
		},
	}
}

func newMixCmd(c *cli) *cobra.Command {
	var (
		out    string
		volume float64
	)
	cmd := &cobra.Command{
		Use:   "mix VOICE MUSIC",
		Short: "Lay background music under a voice track",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			path := svc.Audio.AddBackgroundMusic(ctx, args[0], args[1], out, volume, c.progress)
			if path == "" {
				return errGenerationFailed
			}
			fmt.Fprintln(c.out, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "mixed.mp3", "output file")
	cmd.Flags().Float64Var(&volume, "volume", 0.3, "music volume (0.0-1.0)")
	return cmd
}

func newNarrateCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "narrate SCRIPT",
		Short: "Speak a YAML script of segments and join them into one file",
		Long: "SCRIPT is a YAML list of segments, each with a text and an optional voice:\n\n" +
			"  - text: Welcome to the show.\n" +
			"    voice: Rachel\n" +
			"  - text: Let's begin.\n",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := readScript(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			path := svc.Audio.GenerateNarration(ctx, segments, out, c.progress)
			if path == "" {
				return errGenerationFailed
			}
			fmt.Fprintln(c.out, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "narration.mp3", "output file")
	return cmd
}

func readScript(path string) ([]models.ScriptSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var segments []models.ScriptSegment
	if err := yaml.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("script %s has no segments", path)
	}
	return segments, nil
}

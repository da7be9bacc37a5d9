package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/suggest"
)

func newPromptCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Improve prompts and suggest alternatives",
	}

	var kind string
	improve := &cobra.Command{
		Use:   "improve PROMPT",
		Short: "Rewrite a prompt for better results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Fprintln(c.out, svc.Suggest.ImprovePrompt(ctx, args[0], models.Kind(kind)))
			return nil
		},
	}
	improve.Flags().StringVar(&kind, "kind", string(models.KindImage), "image, audio or video")

	var count int
	variations := &cobra.Command{
		Use:   "variations PROMPT",
		Short: "Suggest variations of a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, v := range svc.Suggest.Variations(ctx, args[0], count) {
				fmt.Fprintln(c.out, v)
			}
			return nil
		},
	}
	variations.Flags().IntVarP(&count, "count", "n", 3, "number of variations (max 10)")

	var styleKind string
	styles := &cobra.Command{
		Use:   "styles PROMPT",
		Short: "Suggest styles that suit a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, s := range svc.Suggest.Styles(ctx, args[0], models.Kind(styleKind)) {
				fmt.Fprintln(c.out, s)
			}
			return nil
		},
	}
	styles.Flags().StringVar(&styleKind, "kind", string(models.KindImage), "image, audio or video")

	var themeCount int
	themes := &cobra.Command{
		Use:   "themes [THEME]",
		Short: "List themes, or prompts for one theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, t := range suggest.Themes() {
					fmt.Fprintln(c.out, t)
				}
				return nil
			}
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, p := range svc.Suggest.ThemePrompts(ctx, args[0], themeCount, models.KindImage) {
				fmt.Fprintln(c.out, p)
			}
			return nil
		},
	}
	themes.Flags().IntVarP(&themeCount, "count", "n", 3, "prompts to generate for THEME")

	cmd.AddCommand(improve, variations, styles, themes)
	return cmd
}

func newScriptCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Draft video scripts",
	}

	var (
		scenes  int
		save    string
		narrate string
		voice   string
	)
	generate := &cobra.Command{
		Use:   "generate IDEA",
		Short: "Draft a scene-by-scene script with narration",
		Long: "Prints the scenes of a short video about IDEA. --save writes the narration\n" +
			"as a YAML script for 'sa audio narrate'; --narrate speaks it into an MP3.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenes < 1 || scenes > suggest.MaxScenes {
				return fmt.Errorf("--scenes must be between 1 and %d", suggest.MaxScenes)
			}
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			script := svc.Suggest.Script(ctx, args[0], scenes)
			for i, sc := range script {
				fmt.Fprintf(c.out, "Scene %d: %s\n  Narration: %s\n", i+1, sc.Visual, sc.Narration)
			}

			segments := suggest.Segments(script, voice)
			if save != "" {
				if err := writeScript(save, segments); err != nil {
					return err
				}
			}
			if narrate != "" {
				path := svc.Audio.GenerateNarration(ctx, segments, narrate, c.progress)
				if path == "" {
					return errGenerationFailed
				}
				fmt.Fprintln(c.out, path)
			}
			return nil
		},
	}
	f := generate.Flags()
	f.IntVarP(&scenes, "scenes", "n", suggest.DefaultScenes, "number of scenes")
	f.StringVar(&save, "save", "", "write the narration segments to a YAML file")
	f.StringVar(&narrate, "narrate", "", "speak the narration into this MP3 file")
	f.StringVar(&voice, "voice", "", "voice for the narration")

	cmd.AddCommand(generate)
	return cmd
}

func writeScript(path string, segments []models.ScriptSegment) error {
	data, err := yaml.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

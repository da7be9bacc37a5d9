package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sa-platform/sa/pkg/api"
	"github.com/sa-platform/sa/pkg/mcp"
	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/validate"
)

func newServeCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				c.cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			c.logger.Info("starting sa api", "config", c.configPath, "version", version)
			return api.New(svc, c.logger).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the generators as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			return mcp.New(svc, version, c.logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "validate image|audio|video TEXT",
		Short:     "Check a prompt or narration text without generating",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"image", "audio", "video"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var res models.ValidationResult
			switch models.Kind(args[0]) {
			case models.KindImage:
				res = validate.ImagePrompt(args[1], "")
			case models.KindAudio:
				res = validate.SpeechText(args[1])
			case models.KindVideo:
				res = validate.VideoPrompt(args[1])
			default:
				return fmt.Errorf("unknown kind %q: want image, audio or video", args[0])
			}

			if res.Valid {
				fmt.Fprintln(c.out, "valid")
			} else {
				fmt.Fprintln(c.out, "invalid")
			}
			for _, s := range res.Issues {
				fmt.Fprintln(c.out, "  issue:", s)
			}
			for _, s := range res.Suggestions {
				fmt.Fprintln(c.out, "  suggestion:", s)
			}
			if !res.Valid {
				return errInvalidInput
			}
			return nil
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which providers and tools are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tREADY")
			for _, name := range statusOrder {
				fmt.Fprintf(w, "%s\t%t\n", name, c.cfg.Status()[name])
			}
			return w.Flush()
		},
	})
	return cmd
}

var statusOrder = []string{"replicate", "elevenlabs", "gtts", "openai", "paths"}

var errInvalidInput = errors.New("input failed validation")

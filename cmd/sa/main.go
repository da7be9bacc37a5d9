package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/sa-platform/sa/pkg/app"
	"github.com/sa-platform/sa/pkg/config"
)

var version = "dev"

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	envFile    string
	cfg        *config.Config
	logger     *slog.Logger
	out        io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "sa",
		Short:         "SA: cached image, speech and video generation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "sa.yaml", "path to config file (yaml or toml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file with provider credentials")

	root.AddCommand(
		newImageCmd(c),
		newAudioCmd(c),
		newVideoCmd(c),
		newPromptCmd(c),
		newScriptCmd(c),
		newCacheCmd(c),
		newStatsCmd(c),
		newValidateCmd(c),
		newConfigCmd(c),
		newServeCmd(c),
		newMCPCmd(c),
	)
	return root
}

func (c *cli) init() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.logger = newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(c.logger)
	return nil
}

// services opens caches, history and providers. The caller closes them.
func (c *cli) services(ctx context.Context) (*app.Services, error) {
	return app.New(ctx, c.cfg, c.logger)
}

// progress prints generator status lines to stderr.
func (c *cli) progress(status string) {
	fmt.Fprintln(os.Stderr, "  "+status)
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

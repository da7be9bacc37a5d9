package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sa-platform/sa/pkg/generator"
	"github.com/sa-platform/sa/pkg/models"
)

var errGenerationFailed = errors.New("generation failed, see log for details")

func newImageCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate and download images",
	}

	var (
		req         = models.NewImageRequest("")
		noCache     bool
		enhance     bool
		downloadDir string
	)
	generate := &cobra.Command{
		Use:   "generate PROMPT",
		Short: "Generate images from a text prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			req.Prompt = args[0]
			req.UseCache = !noCache
			if enhance {
				req.Prompt = svc.Image.EnhancePrompt(req.Prompt)
			}
			urls := svc.Image.Generate(ctx, req, c.progress)
			if len(urls) == 0 {
				return errGenerationFailed
			}
			for _, u := range urls {
				fmt.Fprintln(c.out, u)
			}
			if downloadDir == "" {
				return nil
			}
			for _, p := range svc.Image.BatchDownload(ctx, urls, downloadDir, c.progress) {
				fmt.Fprintln(c.out, p)
			}
			return nil
		},
	}
	f := generate.Flags()
	f.StringVar(&req.NegativePrompt, "negative", "", "what the image should not contain")
	f.IntVar(&req.Width, "width", req.Width, "width in pixels (256-2048, multiple of 64)")
	f.IntVar(&req.Height, "height", req.Height, "height in pixels (256-2048, multiple of 64)")
	f.IntVarP(&req.NumOutputs, "num", "n", req.NumOutputs, "number of images (1-10)")
	f.StringVar(&req.Model, "model", "", "replicate model (owner/name[:version])")
	f.BoolVar(&noCache, "no-cache", false, "skip the cache")
	f.BoolVar(&enhance, "enhance", false, "append quality keywords to the prompt")
	f.StringVarP(&downloadDir, "download", "d", "", "also download the images into this directory")

	download := &cobra.Command{
		Use:   "download URL DEST",
		Short: "Download one image and save it as PNG or JPEG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withImages(cmd.Context(), func(ctx context.Context, g *generator.ImageGenerator) error {
				path := g.Download(ctx, args[0], args[1], c.progress)
				if path == "" {
					return errGenerationFailed
				}
				fmt.Fprintln(c.out, path)
				return nil
			})
		},
	}

	var limit int
	suggest := &cobra.Command{
		Use:   "suggest BASE",
		Short: "Print prompt variations in different styles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withImages(cmd.Context(), func(_ context.Context, g *generator.ImageGenerator) error {
				for _, s := range g.Suggestions(args[0], limit) {
					fmt.Fprintln(c.out, s)
				}
				return nil
			})
		},
	}
	suggest.Flags().IntVar(&limit, "limit", generator.DefaultSuggestions, "number of suggestions")

	cmd.AddCommand(generate, download, suggest)
	return cmd
}

func (c *cli) withImages(ctx context.Context, fn func(context.Context, *generator.ImageGenerator) error) error {
	svc, err := c.services(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc.Image)
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the generation caches",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tBACKEND\tENTRIES\tHITS\tMISSES")
			for _, s := range svc.CacheStats(ctx) {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.Kind, s.Backend, s.Entries, s.Hits, s.Misses)
			}
			return w.Flush()
		},
	}

	var kind string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.ClearCache(ctx, kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Cleared %d cache entries.\n", n)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&kind, "kind", "all", "image, audio, video or all")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

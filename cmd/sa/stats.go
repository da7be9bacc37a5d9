package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/tracker"
)

func newStatsCmd(c *cli) *cobra.Command {
	var (
		kind   string
		recent int
		days   int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show generation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.History.Enabled {
				return errors.New("history is disabled in the config")
			}
			tr, err := tracker.New(c.cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()
			ctx := cmd.Context()
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)

			switch {
			case recent > 0:
				recs, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(c.out, "No generations recorded.")
					return nil
				}
				fmt.Fprintln(w, "TIME\tKIND\tOUTCOME\tPROVIDER\tOUTPUTS\tLATENCY\tPROMPT")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"),
						r.Kind, r.Outcome, r.Provider, r.Outputs, r.LatencyMs, r.Prompt)
				}

			case days > 0:
				since := time.Now().UTC().AddDate(0, 0, -days)
				counts, err := tr.Daily(ctx, since)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Fprintln(c.out, "No generations recorded.")
					return nil
				}
				fmt.Fprintln(w, "DAY\tKIND\tCOUNT")
				for _, d := range counts {
					fmt.Fprintf(w, "%s\t%s\t%d\n", d.Day, d.Kind, d.Count)
				}

			default:
				rows, err := tr.Summary(ctx, models.Kind(kind))
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(c.out, "No generations recorded.")
					return nil
				}
				sort.SliceStable(rows, func(i, j int) bool { return rows[i].Kind < rows[j].Kind })
				fmt.Fprintln(w, "KIND\tOUTCOME\tCOUNT\tOUTPUTS\tAVG LATENCY")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0fms\n", r.Kind, r.Outcome, r.Count, r.Outputs, r.AvgLatencyMs)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter the summary by kind")
	cmd.Flags().IntVar(&recent, "recent", 0, "show the N most recent generations")
	cmd.Flags().IntVar(&days, "days", 0, "show daily counts for the last N days")
	return cmd
}

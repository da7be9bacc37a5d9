package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sa-platform/sa/pkg/models"
	"github.com/sa-platform/sa/pkg/suggest"
)

// formatStats formats generator counters as a text table.
func formatStats(stats map[models.Kind]models.Stats) string {
	kinds := make([]string, 0, len(stats))
	for k := range stats {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %10s %8s %8s %10s %9s\n",
		"Kind", "Generated", "Cached", "Failed", "Downloaded", "Fallback")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, k := range kinds {
		s := stats[models.Kind(k)]
		fmt.Fprintf(&b, "%-8s %10d %8d %8d %10d %9d\n",
			k, s.Generated, s.Cached, s.Failed, s.Downloaded, s.FallbackUsed)
	}
	return b.String()
}

// formatCacheStats formats per-namespace cache stats.
func formatCacheStats(stats []models.CacheStats) string {
	if len(stats) == 0 {
		return "No caches configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-8s %8s %8s %8s %9s\n",
		"Kind", "Backend", "Entries", "Hits", "Misses", "Hit Rate")
	b.WriteString(strings.Repeat("-", 55) + "\n")
	for _, s := range stats {
		total := s.Hits + s.Misses
		rate := float64(0)
		if total > 0 {
			rate = float64(s.Hits) / float64(total) * 100
		}
		fmt.Fprintf(&b, "%-8s %-8s %8d %8d %8d %8.1f%%\n",
			s.Kind, s.Backend, s.Entries, s.Hits, s.Misses, rate)
	}
	return b.String()
}

func formatSummary(rows []models.HistorySummary) string {
	if len(rows) == 0 {
		return "No generations recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-10s %8s %8s %12s\n", "Kind", "Outcome", "Count", "Outputs", "Avg Latency")
	b.WriteString(strings.Repeat("-", 52) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-10s %-10s %8d %8d %10.0fms\n",
			r.Kind, r.Outcome, r.Count, r.Outputs, r.AvgLatencyMs)
	}
	return b.String()
}

func formatRecords(recs []models.GenerationRecord) string {
	if len(recs) == 0 {
		return "No generations recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-10s %-11s %8s  %s\n",
		"Time", "Kind", "Outcome", "Provider", "Latency", "Prompt")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range recs {
		prompt := r.Prompt
		if runes := []rune(prompt); len(runes) > 40 {
			prompt = string(runes[:37]) + "..."
		}
		fmt.Fprintf(&b, "%-20s %-10s %-10s %-11s %6dms  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Kind, r.Outcome, r.Provider, r.LatencyMs, prompt)
	}
	return b.String()
}

func formatValidation(res models.ValidationResult) string {
	var b strings.Builder
	if res.Valid {
		b.WriteString("Valid\n")
	} else {
		b.WriteString("Invalid\n")
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(&b, "  issue: %s\n", issue)
	}
	for _, s := range res.Suggestions {
		fmt.Fprintf(&b, "  suggestion: %s\n", s)
	}
	return b.String()
}

func formatList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

func formatScript(scenes []suggest.Scene) string {
	var b strings.Builder
	for i, sc := range scenes {
		fmt.Fprintf(&b, "Scene %d: %s\n  Narration: %s\n", i+1, sc.Visual, sc.Narration)
	}
	return b.String()
}

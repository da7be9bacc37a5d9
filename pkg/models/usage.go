package models

import "time"

// ValidationResult describes whether an input passed validation.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Issues         []string `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	Length         int      `json:"length,omitempty"`
	NegativeLength int      `json:"negative_prompt_length,omitempty"`
	WordCount      int      `json:"word_count,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
}

// Stats holds per-generator counters.
type Stats struct {
	Generated    int64 `json:"generated"`
	Cached       int64 `json:"cached"`
	Failed       int64 `json:"failed"`
	Downloaded   int64 `json:"downloaded,omitempty"`
	FallbackUsed int64 `json:"fallback_used,omitempty"`
}

// Kind names a generator or media operation.
type Kind string

const (
	KindImage     Kind = "image"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindSlideshow Kind = "slideshow"
	KindMux       Kind = "mux"
	KindMix       Kind = "mix"
	KindNarration Kind = "narration"
	KindDownload  Kind = "download"
)

// Outcome is the terminal result of one generation call.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeCached    Outcome = "cached"
	OutcomeFailed    Outcome = "failed"
	OutcomeFallback  Outcome = "fallback"
)

// GenerationRecord is one entry in the generation history.
type GenerationRecord struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Outcome     Outcome   `json:"outcome"`
	Provider    string    `json:"provider,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Outputs     int       `json:"outputs"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistorySummary aggregates generation records.
type HistorySummary struct {
	Kind         Kind    `json:"kind"`
	Outcome      Outcome `json:"outcome"`
	Count        int     `json:"count"`
	Outputs      int     `json:"outputs"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// DailyCount is the number of generations of a kind on one day.
type DailyCount struct {
	Day   string `json:"day"`
	Kind  Kind   `json:"kind"`
	Count int    `json:"count"`
}

package domain

import "time"

// KnowledgeItem is the durable record for one article, schema v0.2.
// Items are created fresh each run, persisted once in the daily JSON
// index and never mutated afterwards.
type KnowledgeItem struct {
	ID                 string         `json:"id"`
	SourceType         string         `json:"source_type"`
	InfoLayer          string         `json:"info_layer"`
	Language           string         `json:"language"`
	Title              string         `json:"title"`
	URL                string         `json:"url"`
	PublishedAt        time.Time      `json:"published_at"`
	Content            string         `json:"content"`
	ReadingTimeMinutes int            `json:"reading_time_minutes"`
	ImportanceScore    float64        `json:"importance_score"`
	Metadata           map[string]any `json:"metadata"`
}

// metadata keys for source-specific extras carried on every item
const (
	MetaSourceName = "source_name"
	MetaSummary    = "summary"
	MetaFetchedAt  = "fetched_at"
)

// RunSummary aggregates per-run counters surfaced to the caller.
// Only config errors and zero reachable sources are fatal, everything
// else degrades and shows up here.
type RunSummary struct {
	Sources       int
	FailedSources int
	Fetched       int
	Rejected      int
	Duplicates    int
	NewItems      int
	Published     bool
	JSONPath      string
	DigestPath    string
}

package domain

import "time"

// FeedSource is a single subscription loaded from the OPML file
type FeedSource struct {
	Title string
	URL   string
}

// RawEntry is one feed item as delivered by a feed endpoint, before
// normalization. Downstream code depends on this fixed shape only,
// never on the parser's native types.
type RawEntry struct {
	SourceTitle  string
	Title        string
	Link         string
	Summary      string
	RawContent   string
	PublishedAt  time.Time
	HasTimestamp bool // false when the feed provided no usable timestamp
}

// FetchResult holds the outcome of fetching one source. Failed sources
// carry an error and an empty Entries slice, they never abort the run.
type FetchResult struct {
	Source  FeedSource
	Entries []RawEntry
	Err     error
}

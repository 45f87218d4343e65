// Package fetcher retrieves RSS/Atom feeds concurrently and converts
// their entries into the pipeline's transfer type.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/heartbeat/pkg/domain"
)

// Fetcher fetches feeds with a bounded worker pool and applies the
// recency window to their entries.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	fetchHours int
	workers    int

	now func() time.Time // injectable for tests
}

// Params configures a Fetcher
type Params struct {
	SourceTimeout     time.Duration
	UserAgent         string
	FetchHours        int
	MaxWorkersPercent float64
}

// New creates a fetcher. The worker count is a configured fraction of
// available parallelism, rounded, never below 1.
func New(p Params) *Fetcher {
	workers := int(math.Round(p.MaxWorkersPercent * float64(runtime.NumCPU())))
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: p.SourceTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:  p.UserAgent,
		fetchHours: p.FetchHours,
		workers:    workers,
		now:        time.Now,
	}
}

// Workers returns the effective worker pool size
func (f *Fetcher) Workers() int { return f.workers }

// FetchAll fetches every source in parallel, capped at the configured
// worker count. Each worker writes to its own result slot, results keep
// source order. Per-source failures are recorded on the result and never
// abort the run; a canceled context leaves the remaining sources marked
// failed with the context error.
func (f *Fetcher) FetchAll(ctx context.Context, sources []domain.FeedSource) []domain.FetchResult {
	results := make([]domain.FetchResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, src := range sources {
		results[i].Source = src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			entries, err := f.fetchSource(ctx, src)
			if err != nil {
				lgr.Printf("[WARN] failed to fetch %q: %v", src.Title, err)
				results[i].Err = err
				return nil
			}
			results[i].Entries = entries
			return nil
		})
	}

	_ = g.Wait() // workers never return errors, failures live on the results
	return results
}

// fetchSource retrieves and parses one feed, returning entries within the
// recency window
func (f *Fetcher) fetchSource(ctx context.Context, src domain.FeedSource) ([]domain.RawEntry, error) {
	body, err := f.fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := f.now()
	cutoff := now.Add(-time.Duration(f.fetchHours) * time.Hour)

	var entries []domain.RawEntry
	for _, item := range feed.Items {
		entry := domain.RawEntry{
			SourceTitle: src.Title,
			Title:       item.Title,
			Link:        item.Link,
			Summary:     item.Description,
			RawContent:  item.Content,
		}

		switch {
		case item.PublishedParsed != nil:
			entry.PublishedAt = item.PublishedParsed.UTC()
			entry.HasTimestamp = true
		case item.UpdatedParsed != nil:
			entry.PublishedAt = item.UpdatedParsed.UTC()
			entry.HasTimestamp = true
		default:
			// no usable timestamp, treat as just published rather than drop
			entry.PublishedAt = now.UTC()
		}

		if entry.HasTimestamp && (entry.PublishedAt.Before(cutoff) || entry.PublishedAt.After(now)) {
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// fetch retrieves content from a URL
func (f *Fetcher) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

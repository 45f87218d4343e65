// Package pipeline runs one end-to-end ingestion pass: OPML -> fetch ->
// normalize -> dedup -> artifacts -> publish. Data flows strictly one
// way, each stage consumes the fully materialized output of the previous
// one, and only the fetcher runs concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/heartbeat/pkg/config"
	"github.com/umputun/heartbeat/pkg/content"
	"github.com/umputun/heartbeat/pkg/dedup"
	"github.com/umputun/heartbeat/pkg/digest"
	"github.com/umputun/heartbeat/pkg/domain"
	"github.com/umputun/heartbeat/pkg/fetcher"
	"github.com/umputun/heartbeat/pkg/index"
	"github.com/umputun/heartbeat/pkg/normalizer"
	"github.com/umputun/heartbeat/pkg/opml"
	"github.com/umputun/heartbeat/pkg/publisher"
	"github.com/umputun/heartbeat/pkg/repository"
	"github.com/umputun/heartbeat/pkg/scorer"
)

// ErrAllSourcesFailed indicates that not a single feed was reachable,
// one of the two fatal conditions of a run
var ErrAllSourcesFailed = errors.New("all feed sources failed")

// Pipeline executes daily runs for a fixed configuration
type Pipeline struct {
	cfg *config.Config

	now              func() time.Time // injectable for tests
	publisherBaseURL string           // overrides the GitHub API URL in tests
}

// New creates a pipeline for the given configuration
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg, now: time.Now}
}

// Run executes one complete pass and returns the run summary. Only a bad
// OPML file and a fully failed fetch are fatal; every other failure
// degrades with a warning and shows up in the summary counters.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Fetch.RunTimeout)
	defer cancel()

	summary := domain.RunSummary{}
	now := p.now().UTC()

	sources, err := p.loadSources()
	if err != nil {
		return summary, err
	}
	summary.Sources = len(sources)

	entries, failed := p.fetch(ctx, sources)
	summary.FailedSources = failed
	summary.Fetched = len(entries)
	if failed == len(sources) {
		return summary, ErrAllSourcesFailed
	}

	items, rejected := p.normalize(ctx, entries)
	summary.Rejected = rejected

	store := p.openSeenStore(ctx)
	if store != nil {
		defer store.Close()
	}

	fresh, dropped := p.dedup(ctx, items, store, now)
	summary.Duplicates = dropped
	summary.NewItems = len(fresh)

	jsonPath, digestPath, err := p.writeArtifacts(fresh, now)
	if err != nil {
		return summary, err
	}
	summary.JSONPath = jsonPath
	summary.DigestPath = digestPath

	p.recordSeen(ctx, store, fresh, now)
	summary.Published = p.publish(ctx, jsonPath, digestPath, now)

	return summary, nil
}

// loadSources parses the OPML file, any failure here is fatal
func (p *Pipeline) loadSources() ([]domain.FeedSource, error) {
	sources, err := opml.Parse(p.cfg.OPMLPath)
	if err != nil {
		return nil, fmt.Errorf("load feed sources: %w", err)
	}
	lgr.Printf("[INFO] loaded %d feed sources from %s", len(sources), p.cfg.OPMLPath)
	return sources, nil
}

// fetch runs the concurrent feed fetch and flattens the per-source
// results, counting failed sources
func (p *Pipeline) fetch(ctx context.Context, sources []domain.FeedSource) (entries []domain.RawEntry, failed int) {
	f := fetcher.New(fetcher.Params{
		SourceTimeout:     p.cfg.Fetch.SourceTimeout,
		UserAgent:         p.cfg.Fetch.UserAgent,
		FetchHours:        p.cfg.Fetch.Hours,
		MaxWorkersPercent: *p.cfg.Fetch.MaxWorkersPercent,
	})
	lgr.Printf("[INFO] fetching %d feeds (last %dh) with %d workers",
		len(sources), p.cfg.Fetch.Hours, f.Workers())

	for _, res := range f.FetchAll(ctx, sources) {
		if res.Err != nil {
			failed++
			continue
		}
		lgr.Printf("[DEBUG] %s: %d entries", res.Source.Title, len(res.Entries))
		entries = append(entries, res.Entries...)
	}
	return entries, failed
}

// normalize converts entries to knowledge items, optionally swapping in
// extracted full content first. Rejected entries are dropped and counted.
func (p *Pipeline) normalize(ctx context.Context, entries []domain.RawEntry) (items []domain.KnowledgeItem, rejected int) {
	norm := normalizer.New(normalizer.Params{
		ContentLimit:     p.cfg.Normalize.ContentLimit,
		WordsPerMinute:   p.cfg.Normalize.WordsPerMinute,
		FallbackLanguage: p.cfg.Normalize.FallbackLanguage,
		SourceWeights:    p.cfg.SourceWeights,
		FetchHours:       p.cfg.Fetch.Hours,
		Policy:           p.scoringPolicy(),
	})

	var extractor *content.Extractor
	if p.cfg.Extraction.Enabled {
		extractor = content.New(p.cfg.Extraction.Timeout, p.cfg.Fetch.UserAgent)
	}

	for _, entry := range entries {
		if extractor != nil && entry.Link != "" {
			if text, err := extractor.Extract(ctx, entry.Link); err == nil {
				entry.RawContent = text
			} else {
				lgr.Printf("[DEBUG] extraction fell back to summary for %s: %v", entry.Link, err)
			}
		}

		item, err := norm.Normalize(ctx, entry)
		if err != nil {
			lgr.Printf("[WARN] rejected entry from %q: %v", entry.SourceTitle, err)
			rejected++
			continue
		}
		items = append(items, item)
	}

	return items, rejected
}

// scoringPolicy picks the LLM policy when configured, otherwise the
// deterministic heuristic
func (p *Pipeline) scoringPolicy() scorer.Policy {
	heuristic := scorer.NewHeuristic(*p.cfg.Normalize.BaseScore)
	if p.cfg.LLM.Endpoint == "" {
		return heuristic
	}
	lgr.Printf("[INFO] llm scoring enabled, model %s", p.cfg.LLM.Model)
	return scorer.NewLLMPolicy(scorer.LLMParams{
		Endpoint:    p.cfg.LLM.Endpoint,
		APIKey:      p.cfg.LLM.APIKey,
		Model:       p.cfg.LLM.Model,
		Temperature: p.cfg.LLM.Temperature,
		Timeout:     p.cfg.LLM.Timeout,
		Fallback:    heuristic,
	})
}

// openSeenStore opens the optional SQLite seen-items store, a failure
// only disables it
func (p *Pipeline) openSeenStore(ctx context.Context) *repository.SeenStore {
	if p.cfg.Dedup.DSN == "" {
		return nil
	}
	store, err := repository.NewSeenStore(ctx, p.cfg.Dedup.DSN)
	if err != nil {
		lgr.Printf("[WARN] seen store unavailable, dedup uses JSON indices only: %v", err)
		return nil
	}
	return store
}

// dedup drops items recorded in the prior dedup window, consulting the
// daily JSON indices and, when present, the seen store. Today's index
// counts too, so a same-day re-run merges instead of duplicating.
func (p *Pipeline) dedup(ctx context.Context, items []domain.KnowledgeItem, store *repository.SeenStore, now time.Time) ([]domain.KnowledgeItem, int) {
	seenSets := []map[string]struct{}{
		index.SeenIDs(filepath.Join(p.cfg.OutputDir, "json"), now, p.cfg.Dedup.Days),
	}

	if store != nil {
		since := now.AddDate(0, 0, -p.cfg.Dedup.Days)
		if seen, err := store.SeenSince(ctx, since); err == nil {
			seenSets = append(seenSets, seen)
		} else {
			lgr.Printf("[WARN] seen store query failed: %v", err)
		}
	}

	return dedup.Filter(items, seenSets...)
}

// writeArtifacts merges new items into today's index and writes both the
// JSON index and the Markdown digest
func (p *Pipeline) writeArtifacts(fresh []domain.KnowledgeItem, now time.Time) (jsonPath, digestPath string, err error) {
	jsonDir := filepath.Join(p.cfg.OutputDir, "json")
	digestDir := filepath.Join(p.cfg.OutputDir, "digest")
	for _, dir := range []string{jsonDir, digestDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", "", fmt.Errorf("create output dir: %w", err)
		}
	}

	jsonPath = filepath.Join(jsonDir, index.DayFile(now))

	// merge-by-id policy: a same-day re-run extends the existing index,
	// it never loses or duplicates items
	idx, err := index.Load(jsonPath)
	if err != nil {
		lgr.Printf("[WARN] existing index unreadable, starting fresh: %v", err)
		idx = index.Index{}
	}
	for _, item := range fresh {
		idx[item.ID] = item
	}

	data, err := idx.Marshal()
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, data, 0o600); err != nil {
		return "", "", fmt.Errorf("write json index: %w", err)
	}
	lgr.Printf("[INFO] saved %s (%d items)", jsonPath, len(idx))

	digestPath = filepath.Join(digestDir, digest.DayFile(now))
	if err := os.WriteFile(digestPath, []byte(digest.Render(idx, now)), 0o600); err != nil {
		return "", "", fmt.Errorf("write digest: %w", err)
	}
	lgr.Printf("[INFO] saved %s", digestPath)

	return jsonPath, digestPath, nil
}

// recordSeen stores the new ids in the seen store and prunes entries
// older than twice the dedup window
func (p *Pipeline) recordSeen(ctx context.Context, store *repository.SeenStore, fresh []domain.KnowledgeItem, now time.Time) {
	if store == nil || len(fresh) == 0 {
		return
	}

	ids := make([]string, len(fresh))
	for i, item := range fresh {
		ids[i] = item.ID
	}
	if err := store.Record(ctx, now, ids, ""); err != nil {
		lgr.Printf("[WARN] failed to record seen ids: %v", err)
	}

	if n, err := store.PruneBefore(ctx, now.AddDate(0, 0, -2*p.cfg.Dedup.Days)); err != nil {
		lgr.Printf("[WARN] failed to prune seen store: %v", err)
	} else if n > 0 {
		lgr.Printf("[DEBUG] pruned %d stale seen entries", n)
	}
}

// publish uploads both artifacts to the configured GitHub repository.
// Missing credentials disable publishing, failures are warnings only.
func (p *Pipeline) publish(ctx context.Context, jsonPath, digestPath string, now time.Time) bool {
	pub := publisher.New(publisher.Params{
		User:    p.cfg.GitHub.User,
		Repo:    p.cfg.GitHub.Repo,
		Branch:  p.cfg.GitHub.Branch,
		Token:   p.cfg.Token(),
		BaseURL: p.publisherBaseURL,
	})
	if pub == nil {
		lgr.Printf("[INFO] publishing disabled, artifacts saved locally only")
		return false
	}

	files := map[string][]byte{}
	for _, path := range []string{jsonPath, digestPath} {
		data, err := os.ReadFile(path) //nolint:gosec // paths produced by this run
		if err != nil {
			lgr.Printf("[WARN] cannot read artifact for publish: %v", err)
			return false
		}
		rel, err := filepath.Rel(p.cfg.OutputDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		files[filepath.ToSlash(rel)] = data
	}

	day := now.Format("2006-01-02")
	if err := pub.Publish(ctx, files, "Daily RSS digest: "+day); err != nil {
		lgr.Printf("[WARN] publish failed, artifacts remain local: %v", err)
		return false
	}

	lgr.Printf("[INFO] published digest: %s", pub.URL("digest/"+day+".md"))
	return true
}

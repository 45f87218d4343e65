// Package normalizer converts raw feed entries into canonical knowledge
// items: stable identity, language, reading time, bounded content and an
// importance score.
package normalizer

import (
	"context"
	"crypto/sha1" //nolint:gosec // identity hash, not security
	"encoding/hex"
	"errors"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/microcosm-cc/bluemonday"

	"github.com/umputun/heartbeat/pkg/domain"
	"github.com/umputun/heartbeat/pkg/scorer"
)

// ErrRejected indicates an entry without title and link, unusable for a
// knowledge item. Rejections are counted, never fatal.
var ErrRejected = errors.New("entry has neither title nor link")

// summaries are capped the same way the metadata consumer expects
const summaryLimit = 500

// minimum text length for reliable language detection
const minDetectChars = 20

// Normalizer turns RawEntry values into KnowledgeItems
type Normalizer struct {
	contentLimit  int
	wpm           int
	fallbackLang  string
	sourceWeights map[string]float64
	window        time.Duration
	policy        scorer.Policy
	stripper      *bluemonday.Policy

	now func() time.Time
}

// Params configures a Normalizer
type Params struct {
	ContentLimit     int
	WordsPerMinute   int
	FallbackLanguage string
	SourceWeights    map[string]float64
	FetchHours       int
	Policy           scorer.Policy
}

// New creates a normalizer with the given limits and scoring policy
func New(p Params) *Normalizer {
	return &Normalizer{
		contentLimit:  p.ContentLimit,
		wpm:           p.WordsPerMinute,
		fallbackLang:  p.FallbackLanguage,
		sourceWeights: p.SourceWeights,
		window:        time.Duration(p.FetchHours) * time.Hour,
		policy:        p.Policy,
		stripper:      bluemonday.StrictPolicy(),
		now:           time.Now,
	}
}

// Normalize converts one raw entry into a knowledge item. The item id is
// the SHA-1 of the canonicalized URL, so identical URLs always produce the
// same id regardless of feed-provided GUIDs.
func (n *Normalizer) Normalize(ctx context.Context, entry domain.RawEntry) (domain.KnowledgeItem, error) {
	if entry.Title == "" && entry.Link == "" {
		return domain.KnowledgeItem{}, ErrRejected
	}

	canonical := CanonicalURL(entry.Link)
	summary := n.stripHTML(entry.Summary)
	if utf8.RuneCountInString(summary) > summaryLimit {
		summary = truncateAtSpace(summary, summaryLimit)
	}

	content := n.stripHTML(entry.RawContent)
	if content == "" {
		content = summary
	}
	if utf8.RuneCountInString(content) > n.contentLimit {
		content = truncateAtSpace(content, n.contentLimit)
	}

	now := n.now().UTC()
	item := domain.KnowledgeItem{
		ID:                 ItemID(canonical),
		SourceType:         "rss",
		InfoLayer:          "content",
		Language:           n.detectLanguage(entry.Title + " " + summary),
		Title:              entry.Title,
		URL:                entry.Link,
		PublishedAt:        entry.PublishedAt.UTC(),
		Content:            content,
		ReadingTimeMinutes: readingTime(content, n.wpm),
		Metadata: map[string]any{
			domain.MetaSourceName: entry.SourceTitle,
			domain.MetaSummary:    summary,
			domain.MetaFetchedAt:  now.Format(time.RFC3339),
		},
	}

	item.ImportanceScore = n.policy.Score(ctx, scorer.Signals{
		Title:        entry.Title,
		Summary:      summary,
		ContentChars: utf8.RuneCountInString(content),
		SourceWeight: n.sourceWeights[entry.SourceTitle],
		Age:          now.Sub(item.PublishedAt),
		Window:       n.window,
	})

	return item, nil
}

// ItemID returns the stable identity for a canonical URL
func ItemID(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL)) //nolint:gosec // identity hash, not security
	return hex.EncodeToString(sum[:])
}

// tracking query parameters stripped during canonicalization
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "igshid": true, "mc_cid": true,
	"mc_eid": true, "ref": true, "source": true,
}

// CanonicalURL normalizes a URL for identity purposes: lowercase scheme
// and host, fragment dropped, tracking parameters (utm_* and known click
// ids) removed, remaining query in sorted order. Unparsable input is
// returned as-is so every entry still gets a deterministic id.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode() // Encode sorts keys, keeps identity stable

	return u.String()
}

// iso639-3 to iso639-1 for the languages the detector reports most, the
// raw three-letter code passes through for the rest
var langCodes = map[string]string{
	"eng": "en", "spa": "es", "fra": "fr", "deu": "de", "ita": "it",
	"por": "pt", "nld": "nl", "rus": "ru", "ukr": "uk", "pol": "pl",
	"ces": "cs", "swe": "sv", "nob": "no", "dan": "da", "fin": "fi",
	"tur": "tr", "ara": "ar", "heb": "he", "hin": "hi", "cmn": "zh",
	"jpn": "ja", "kor": "ko", "vie": "vi", "ind": "id", "ell": "el",
}

// detectLanguage runs statistical detection over the given text, falling
// back to the configured language on short or ambiguous input
func (n *Normalizer) detectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < minDetectChars {
		return n.fallbackLang
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return n.fallbackLang
	}

	code := whatlanggo.LangToString(info.Lang)
	if code == "" {
		return n.fallbackLang
	}
	if short, ok := langCodes[code]; ok {
		return short
	}
	return code
}

// stripHTML reduces markup to plain text with entities decoded
func (n *Normalizer) stripHTML(s string) string {
	if s == "" {
		return ""
	}
	stripped := n.stripper.Sanitize(s)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// readingTime estimates minutes to read, never below one
func readingTime(content string, wpm int) int {
	words := len(strings.Fields(content))
	minutes := (words + wpm - 1) / wpm
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// truncateAtSpace cuts s to at most limit runes, ending on a word
// boundary. Limits count runes, not bytes, so non-ASCII text keeps its
// full budget and a multibyte rune is never split.
func truncateAtSpace(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := runes[:limit]
	if !unicode.IsSpace(runes[limit]) {
		// the limit falls mid-word, back off to the last whitespace;
		// space-less text (CJK) keeps the full rune prefix
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}

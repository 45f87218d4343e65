package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/heartbeat/pkg/domain"
	"github.com/umputun/heartbeat/pkg/index"
)

func item(id, source, title string, published time.Time, summary string) domain.KnowledgeItem {
	return domain.KnowledgeItem{
		ID:                 id,
		Title:              title,
		URL:                "https://example.com/" + id,
		PublishedAt:        published,
		ReadingTimeMinutes: 3,
		ImportanceScore:    0.62,
		Metadata: map[string]any{
			domain.MetaSourceName: source,
			domain.MetaSummary:    summary,
		},
	}
}

func TestRender(t *testing.T) {
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	idx := index.Index{
		"1": item("1", "Zeta Blog", "Older post", day.Add(-5*time.Hour), "older summary"),
		"2": item("2", "Zeta Blog", "Newer post", day.Add(-1*time.Hour), "newer summary"),
		"3": item("3", "Alpha News", "Breaking", day.Add(-2*time.Hour), "quote > inside"),
	}

	out := Render(idx, day)

	assert.Contains(t, out, "# Daily Tech Digest (2024-06-01)")
	assert.Contains(t, out, "**3 articles from 2 sources**")

	// groups sorted by name
	alphaPos := strings.Index(out, "## Alpha News")
	zetaPos := strings.Index(out, "## Zeta Blog")
	require.NotEqual(t, -1, alphaPos)
	require.NotEqual(t, -1, zetaPos)
	assert.Less(t, alphaPos, zetaPos)

	// entries within a group sorted by publish time, newest first
	newerPos := strings.Index(out, "Newer post")
	olderPos := strings.Index(out, "Older post")
	assert.Less(t, newerPos, olderPos)

	// fixed entry template
	assert.Contains(t, out, "- [Newer post](https://example.com/2) — 3 min read, score 0.62")
	assert.Contains(t, out, "> newer summary")

	// markdown blockquote markers in summaries are escaped
	assert.Contains(t, out, `quote \> inside`)
}

func TestRender_Empty(t *testing.T) {
	out := Render(index.Index{}, time.Now())
	assert.Contains(t, out, "No new articles found today")
}

func TestRender_Deterministic(t *testing.T) {
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	idx := index.Index{
		"a": item("a", "Feed", "One", day.Add(-time.Hour), ""),
		"b": item("b", "Feed", "Two", day.Add(-time.Hour), ""), // same timestamp, id breaks the tie
	}
	assert.Equal(t, Render(idx, day), Render(idx, day))
}

func TestDayFile(t *testing.T) {
	assert.Equal(t, "2024-06-01.md", DayFile(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

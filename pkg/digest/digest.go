// Package digest renders the human-readable Markdown view of a daily
// index. The digest is a pure function of the index and holds no state of
// its own, it can always be regenerated.
package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/umputun/heartbeat/pkg/domain"
	"github.com/umputun/heartbeat/pkg/index"
)

// DayFile returns the digest filename for a given day, YYYY-MM-DD.md
func DayFile(day time.Time) string {
	return day.Format("2006-01-02") + ".md"
}

// Render builds the Markdown digest for one day's index: items grouped by
// source title, groups sorted by name, entries within a group sorted by
// publish time descending.
func Render(idx index.Index, day time.Time) string {
	if len(idx) == 0 {
		return "# Daily Digest\n\nNo new articles found today.\n"
	}

	items := lo.Values(idx)
	groups := lo.GroupBy(items, func(item domain.KnowledgeItem) string {
		name, _ := item.Metadata[domain.MetaSourceName].(string)
		if name == "" {
			name = "Unknown"
		}
		return name
	})

	names := lo.Keys(groups)
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Daily Tech Digest (%s)\n\n", day.Format("2006-01-02"))
	fmt.Fprintf(&sb, "**%d articles from %d sources**\n\n", len(items), len(groups))

	for _, name := range names {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].PublishedAt.Equal(group[j].PublishedAt) {
				return group[i].PublishedAt.After(group[j].PublishedAt)
			}
			return group[i].ID < group[j].ID // stable tiebreak keeps output deterministic
		})

		fmt.Fprintf(&sb, "## %s\n\n", name)
		for _, item := range group {
			fmt.Fprintf(&sb, "- [%s](%s) — %d min read, score %.2f\n",
				item.Title, item.URL, item.ReadingTimeMinutes, item.ImportanceScore)
			if snippet, _ := item.Metadata[domain.MetaSummary].(string); snippet != "" {
				fmt.Fprintf(&sb, "  > %s\n", strings.ReplaceAll(snippet, ">", `\>`))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

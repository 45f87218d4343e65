// Package index builds and reads the daily JSON index, a mapping from
// item id to knowledge item, one file per calendar day.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/heartbeat/pkg/domain"
)

// Index is the daily id -> item mapping, schema v0.2
type Index map[string]domain.KnowledgeItem

// DayFile returns the index filename for a given day, YYYY-MM-DD.json
func DayFile(day time.Time) string {
	return day.Format("2006-01-02") + ".json"
}

// Marshal serializes the index deterministically: encoding/json emits map
// keys in sorted order and struct fields in declared order, so identical
// input always yields byte-identical output.
func (idx Index) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a daily index file. A missing file yields an empty index,
// not an error.
func Load(path string) (Index, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derives from config
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	return idx, nil
}

// SeenIDs collects item ids from the daily index files of the prior days
// days, today included. Unreadable files are skipped with a warning, the
// dedup set degrades rather than failing the run.
func SeenIDs(dir string, today time.Time, days int) map[string]struct{} {
	seen := map[string]struct{}{}
	for d := 0; d <= days; d++ {
		path := filepath.Join(dir, DayFile(today.AddDate(0, 0, -d)))
		idx, err := Load(path)
		if err != nil {
			lgr.Printf("[WARN] skipping prior index %s: %v", path, err)
			continue
		}
		for id := range idx {
			seen[id] = struct{}{}
		}
	}
	return seen
}

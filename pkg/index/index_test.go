package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/heartbeat/pkg/domain"
)

func testItem(id, title string) domain.KnowledgeItem {
	return domain.KnowledgeItem{
		ID:                 id,
		SourceType:         "rss",
		InfoLayer:          "content",
		Language:           "en",
		Title:              title,
		URL:                "https://example.com/" + id,
		PublishedAt:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Content:            "some content",
		ReadingTimeMinutes: 1,
		ImportanceScore:    0.4,
		Metadata:           map[string]any{domain.MetaSourceName: "Test Feed"},
	}
}

func TestIndex_MarshalDeterministic(t *testing.T) {
	idx1 := Index{}
	idx1["bbb"] = testItem("bbb", "second")
	idx1["aaa"] = testItem("aaa", "first")

	// same content, different insertion order
	idx2 := Index{}
	idx2["aaa"] = testItem("aaa", "first")
	idx2["bbb"] = testItem("bbb", "second")

	data1, err := idx1.Marshal()
	require.NoError(t, err)
	data2, err := idx2.Marshal()
	require.NoError(t, err)

	assert.Equal(t, data1, data2, "identical input must produce byte-identical output")

	// repeated marshal of the same index is stable too
	data3, err := idx1.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data1, data3)
}

func TestIndex_RoundTrip(t *testing.T) {
	idx := Index{"aaa": testItem("aaa", "hello")}
	data, err := idx.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "2024-06-01.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "hello", loaded["aaa"].Title)
	assert.Equal(t, idx["aaa"].PublishedAt, loaded["aaa"].PublishedAt)
}

func TestLoad_Missing(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSeenIDs(t *testing.T) {
	dir := t.TempDir()
	today := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	write := func(day time.Time, idx Index) {
		data, err := idx.Marshal()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, DayFile(day)), data, 0o600))
	}
	write(today, Index{"id-today": testItem("id-today", "t")})
	write(today.AddDate(0, 0, -1), Index{"id-yesterday": testItem("id-yesterday", "y")})
	write(today.AddDate(0, 0, -5), Index{"id-old": testItem("id-old", "o")})

	seen := SeenIDs(dir, today, 1)
	assert.Contains(t, seen, "id-today")
	assert.Contains(t, seen, "id-yesterday")
	assert.NotContains(t, seen, "id-old", "outside the dedup window")
}

func TestDayFile(t *testing.T) {
	assert.Equal(t, "2024-06-01.json", DayFile(time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)))
}

package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umputun/heartbeat/pkg/domain"
)

func TestFilter(t *testing.T) {
	candidates := []domain.KnowledgeItem{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second"},
		{ID: "c", Title: "third"},
	}
	seen := map[string]struct{}{"b": {}}

	kept, dropped := Filter(candidates, seen)
	assert.Equal(t, 1, dropped)
	assert.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID, "order preserved")
	assert.Equal(t, "c", kept[1].ID)
}

func TestFilter_MultipleSets(t *testing.T) {
	candidates := []domain.KnowledgeItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	kept, dropped := Filter(candidates, map[string]struct{}{"a": {}}, map[string]struct{}{"c": {}})
	assert.Equal(t, 2, dropped)
	assert.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].ID)
}

func TestFilter_InRunDuplicates(t *testing.T) {
	// two sources delivering the same canonical URL collapse to one item
	candidates := []domain.KnowledgeItem{
		{ID: "a", Title: "from feed 1"},
		{ID: "a", Title: "from feed 2"},
	}
	kept, dropped := Filter(candidates)
	assert.Equal(t, 1, dropped)
	assert.Len(t, kept, 1)
	assert.Equal(t, "from feed 1", kept[0].Title, "first occurrence wins")
}

func TestFilter_Empty(t *testing.T) {
	kept, dropped := Filter(nil, map[string]struct{}{"a": {}})
	assert.Empty(t, kept)
	assert.Zero(t, dropped)
}

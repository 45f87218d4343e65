// Package dedup drops items already recorded in prior runs. Matching is
// id-based only: items with different canonical URLs are never merged,
// however similar their content.
package dedup

import "github.com/umputun/heartbeat/pkg/domain"

// Filter returns the candidates whose id is absent from every given seen
// set, preserving order. Duplicates within the candidates themselves are
// collapsed too, first occurrence wins.
func Filter(candidates []domain.KnowledgeItem, seen ...map[string]struct{}) (kept []domain.KnowledgeItem, dropped int) {
	inRun := map[string]struct{}{}

	for _, item := range candidates {
		if _, ok := inRun[item.ID]; ok {
			dropped++
			continue
		}
		if seenBefore(item.ID, seen) {
			dropped++
			continue
		}
		inRun[item.ID] = struct{}{}
		kept = append(kept, item)
	}
	return kept, dropped
}

func seenBefore(id string, sets []map[string]struct{}) bool {
	for _, s := range sets {
		if _, ok := s[id]; ok {
			return true
		}
	}
	return false
}

// Package scorer implements importance-scoring policies. A policy maps
// an item's signals to a bounded [0,1] score; the default heuristic is
// deterministic and monotone in every signal.
package scorer

import (
	"context"
	"math"
	"time"
)

// Signals are the inputs an importance policy may consider
type Signals struct {
	Title        string
	Summary      string
	ContentChars int
	SourceWeight float64 // per-feed weight in [0,1], 0 when unconfigured
	Age          time.Duration
	Window       time.Duration // recency window, the fetch horizon
}

// Policy scores an item's signals into [0,1]. The context bounds any
// remote work a policy does, canceling the run cancels in-flight scoring.
type Policy interface {
	Score(ctx context.Context, s Signals) float64
}

// Heuristic is the default scoring policy: a base score raised by
// content-length, recency and source-weight signals. Adding any signal
// never lowers the score, the result is always clamped to [0,1].
type Heuristic struct {
	Base float64
}

// NewHeuristic creates the default policy with the given base score
func NewHeuristic(base float64) *Heuristic {
	return &Heuristic{Base: clamp(base)}
}

// content length at which the length signal saturates
const lengthSaturation = 8000

// Score combines signals into a bounded score. Each signal contributes a
// non-negative bonus on top of the base, so more signal never means a
// lower score.
func (h *Heuristic) Score(_ context.Context, s Signals) float64 {
	score := h.Base

	// longer content up to the saturation point reads as more substantial
	length := float64(s.ContentChars)
	if length > lengthSaturation {
		length = lengthSaturation
	}
	score += 0.25 * (length / lengthSaturation)

	// fresher items score higher, the bonus decays linearly over the window
	if s.Window > 0 {
		age := s.Age
		if age < 0 {
			age = 0
		}
		freshness := 1 - float64(age)/float64(s.Window)
		if freshness > 0 {
			score += 0.15 * freshness
		}
	}

	// configured per-feed weight
	score += 0.2 * clamp(s.SourceWeight)

	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

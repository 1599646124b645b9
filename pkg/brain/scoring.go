package brain

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidScore reports a scorer returning a value outside [0, 1],
// which is a programming error in the scorer.
var ErrInvalidScore = errors.New("score out of range")

// Scorer rates one candidate reply in [0, 1]. A scorer may keep a
// cache for the duration of one reply session; End clears it.
type Scorer interface {
	Score(r *Reply) (float64, error)
	End()
}

type weightedScorer struct {
	weight float64
	scorer Scorer
}

// ScorerGroup combines independent scorers into one weighted score.
type ScorerGroup struct {
	scorers []weightedScorer
}

func NewScorerGroup() *ScorerGroup {
	return &ScorerGroup{}
}

// AddScorer registers a scorer. A negative weight inverts the scorer's
// output (1-s), making high-scoring replies costly.
func (g *ScorerGroup) AddScorer(weight float64, s Scorer) {
	g.scorers = append(g.scorers, weightedScorer{weight: weight, scorer: s})
}

// Score computes sum(|w| * s') / sum(|w|), with s' = 1-s for negative
// weights.
func (g *ScorerGroup) Score(r *Reply) (float64, error) {
	var total, weights float64
	for _, ws := range g.scorers {
		score, err := ws.scorer.Score(r)
		if err != nil {
			return 0, err
		}
		if score < 0 || score > 1 {
			return 0, fmt.Errorf("%w: %T returned %v", ErrInvalidScore, ws.scorer, score)
		}
		if ws.weight < 0 {
			score = 1 - score
		}
		total += math.Abs(ws.weight) * score
		weights += math.Abs(ws.weight)
	}

	if weights == 0 {
		return 0, nil
	}
	return total / weights, nil
}

// End clears per-session caches across the group.
func (g *ScorerGroup) End() {
	for _, ws := range g.scorers {
		ws.scorer.End()
	}
}

// =============================================================================
// CobeScorer
// =============================================================================

// CobeScorer is the classic context-probability heuristic: a reply is
// as interesting as the improbability of its transitions. Node counts
// are cached for the reply session.
type CobeScorer struct {
	nodeCounts map[int64]int64
}

func NewCobeScorer() *CobeScorer {
	return &CobeScorer{nodeCounts: make(map[int64]int64)}
}

func (s *CobeScorer) Score(r *Reply) (float64, error) {
	// Batch-fetch the prev node counts this reply needs and are not
	// cached yet.
	var missing []int64
	queued := make(map[int64]struct{})
	for _, e := range r.Edges {
		if _, ok := s.nodeCounts[e.Prev]; ok {
			continue
		}
		if _, ok := queued[e.Prev]; ok {
			continue
		}
		queued[e.Prev] = struct{}{}
		missing = append(missing, e.Prev)
	}
	if len(missing) > 0 {
		counts, err := r.graph.NodeCounts(missing)
		if err != nil {
			return 0, err
		}
		for id, count := range counts {
			s.nodeCounts[id] = count
		}
	}

	var info float64
	spaces := 0
	for _, e := range r.Edges {
		if count := s.nodeCounts[e.Prev]; count > 0 {
			info -= math.Log2(float64(e.Count) / float64(count))
		}
		if e.HasSpace {
			spaces++
		}
	}

	order := r.graph.Order()
	nWords := len(r.Edges) - 2*(order-1) + spaces

	// Double the information content, compensating for the forward and
	// reverse scoring passes earlier versions ran.
	info *= 2

	// The second branch is unreachable; it is kept verbatim to match
	// the historical scoring behavior.
	if nWords > 16 {
		info /= math.Sqrt(float64(nWords - 1))
	} else if nWords >= 32 {
		info /= float64(nWords)
	}

	if info > 0 {
		return 1 - 1/(1+info), nil
	}
	return info, nil
}

func (s *CobeScorer) End() {
	s.nodeCounts = make(map[int64]int64)
}

// =============================================================================
// IdentityScorer
// =============================================================================

// IdentityScorer detects parroting: it scores 1.0 when the reply
// reproduces the input token sequence with its original spacing, and
// 0.0 otherwise. Registered with a negative weight it makes parroted
// replies maximally costly.
type IdentityScorer struct{}

func (IdentityScorer) Score(r *Reply) (float64, error) {
	ids, err := r.surfaceTokenIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 && slices.Equal(ids, r.TokenIDs) {
		return 1.0, nil
	}
	return 0.0, nil
}

func (IdentityScorer) End() {}

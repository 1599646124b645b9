package brain

import (
	"fmt"
	"strings"

	"github.com/kittclouds/gobe/internal/store"
)

// Reply is one candidate response: the ordered edge list produced by a
// bidirectional walk, plus the input context the scorers compare it
// against. It borrows the graph for the duration of scoring.
type Reply struct {
	graph *store.Store

	// Tokens and TokenIDs are the tokenized input, with SPACE
	// sentinels for single spaces and 0 for unknown words.
	Tokens   []string
	TokenIDs []int64

	PivotNode int64
	Edges     []store.Edge

	endTokenID int64
}

// ToText renders the reply: each edge contributes the last word of its
// prev context, with a single space after edges learned across
// whitespace. End-context slots render as empty strings.
func (r *Reply) ToText() (string, error) {
	var b strings.Builder
	for _, e := range r.Edges {
		word, err := r.graph.EdgePrevWord(e)
		if err != nil {
			return "", fmt.Errorf("render edge %d: %w", e.ID, err)
		}
		b.WriteString(word)
		if e.HasSpace {
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}

// surfaceTokenIDs lists the reply's surface tokens as ids, in the same
// shape as the input TokenIDs: prev tokens of every edge after the
// first, END sentinels skipped, a SPACE sentinel after each has_space
// edge.
func (r *Reply) surfaceTokenIDs() ([]int64, error) {
	var ids []int64
	for i, e := range r.Edges {
		if i == 0 {
			continue
		}
		id, err := r.graph.EdgePrevTokenID(e)
		if err != nil {
			return nil, err
		}
		if id != r.endTokenID {
			ids = append(ids, id)
		}
		if e.HasSpace {
			ids = append(ids, spaceTokenID)
		}
	}
	return ids, nil
}

// edgeKey memoizes a candidate by its edge ids so the reply loop never
// scores the same walk twice.
func (r *Reply) edgeKey() string {
	var b strings.Builder
	for i, e := range r.Edges {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%d", e.ID)
	}
	return b.String()
}

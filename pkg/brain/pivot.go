package brain

import (
	"fmt"
	"math/rand"
	"strings"
)

// pivotSet mixes two kinds of pivots: single token ids and groups of
// stem-equivalent ids ("choose uniformly among these"). Order is
// preserved so replies stay deterministic under a fixed PRNG.
type pivotSet struct {
	singles []int64
	groups  [][]int64

	singleIdx map[int64]bool
	groupKeys map[string]bool
}

func newPivotSet() *pivotSet {
	return &pivotSet{
		singleIdx: make(map[int64]bool),
		groupKeys: make(map[string]bool),
	}
}

func (p *pivotSet) len() int {
	return len(p.singles) + len(p.groups)
}

func (p *pivotSet) addSingle(id int64) {
	if p.singleIdx[id] {
		return
	}
	p.singleIdx[id] = true
	p.singles = append(p.singles, id)
}

// addGroup inserts a stem group and evicts its members from the
// singles, so a stemmed word is only ever picked through its group.
func (p *pivotSet) addGroup(ids []int64) {
	key := groupKey(ids)
	if p.groupKeys[key] {
		return
	}
	p.groupKeys[key] = true
	p.groups = append(p.groups, ids)

	for _, id := range ids {
		p.removeSingle(id)
	}
}

func (p *pivotSet) removeSingle(id int64) {
	if !p.singleIdx[id] {
		return
	}
	delete(p.singleIdx, id)
	for i, s := range p.singles {
		if s == id {
			p.singles = append(p.singles[:i], p.singles[i+1:]...)
			break
		}
	}
}

// choose picks one pivot uniformly; picking a group draws again within
// it.
func (p *pivotSet) choose(rng *rand.Rand) int64 {
	i := rng.Intn(p.len())
	if i < len(p.singles) {
		return p.singles[i]
	}
	group := p.groups[i-len(p.singles)]
	return group[rng.Intn(len(group))]
}

func groupKey(ids []int64) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	return b.String()
}

package brain

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// BlocklistScorer flags replies containing any of a set of phrases,
// matched case-insensitively via a single Aho-Corasick pass. It scores
// 1.0 on a hit, so it is meant to be registered with a negative
// weight.
type BlocklistScorer struct {
	ac ahocorasick.AhoCorasick
}

// NewBlocklistScorer compiles the phrase list into an automaton.
func NewBlocklistScorer(phrases []string) *BlocklistScorer {
	patterns := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})

	return &BlocklistScorer{ac: builder.Build(patterns)}
}

func (s *BlocklistScorer) Score(r *Reply) (float64, error) {
	text, err := r.ToText()
	if err != nil {
		return 0, err
	}
	if len(s.ac.FindAll(strings.ToLower(text))) > 0 {
		return 1.0, nil
	}
	return 0.0, nil
}

func (s *BlocklistScorer) End() {}

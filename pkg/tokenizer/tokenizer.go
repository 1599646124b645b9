// Package tokenizer splits chat text into the token streams the brain
// learns from. Two interchangeable variants exist: the default Cobe
// tokenizer and a MegaHAL-compatible one.
package tokenizer

import "fmt"

// Tokenizer converts between raw text and an ordered token list.
// Split never returns nil for non-empty input; Join is the inverse
// rendering operation (exact for Cobe, case-normalizing for MegaHAL).
type Tokenizer interface {
	Split(text string) []string
	Join(tokens []string) string
}

// New resolves a tokenizer by the name stored in a brain's info table.
func New(name string) (Tokenizer, error) {
	switch name {
	case "Cobe":
		return CobeTokenizer{}, nil
	case "MegaHAL":
		return MegaHALTokenizer{}, nil
	}
	return nil, fmt.Errorf("unknown tokenizer %q", name)
}

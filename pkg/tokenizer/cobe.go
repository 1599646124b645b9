package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CobeTokenizer is the default tokenizer. It emits, by priority:
// URL-like tokens (word run, colon, non-space run), words (word
// characters plus apostrophe and hyphen), punctuation clusters, single
// punctuation characters, and whitespace runs collapsed to " ".
// Case is preserved and Join(Split(text)) reproduces text up to
// whitespace collapse.
type CobeTokenizer struct{}

// Single-pass scanner rather than a regex alternation; the alternation
// order above is encoded in the branch order here.
type cobeScanner struct {
	text string
	n    int
}

func (CobeTokenizer) Split(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	cs := cobeScanner{text: text, n: len(text)}
	var tokens []string

	i := 0
	for i < cs.n {
		r, _ := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i = cs.scanSpace(i)
			tokens = append(tokens, " ")
		case isWordRune(r):
			var tok string
			tok, i = cs.scanWordOrURL(i)
			tokens = append(tokens, tok)
		case r == '\'' || r == '-':
			// Hyphens and apostrophes join words but are still
			// non-word characters, so standing alone they behave
			// like the word alternative matching them directly.
			var tok string
			tok, i = cs.scanWordRun(i)
			tokens = append(tokens, tok)
		default:
			var tok string
			tok, i = cs.scanPunctuation(i)
			tokens = append(tokens, tok)
		}
	}

	return tokens
}

func (CobeTokenizer) Join(tokens []string) string {
	return strings.Join(tokens, "")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (cs *cobeScanner) scanSpace(i int) int {
	for i < cs.n {
		r, w := utf8.DecodeRuneInString(cs.text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += w
	}
	return i
}

// scanWordOrURL starts on a word rune. A pure word-character run
// immediately followed by a colon and at least one non-space character
// is a URL token running to the next whitespace; anything else falls
// back to a word token that may also contain apostrophes and hyphens.
func (cs *cobeScanner) scanWordOrURL(i int) (string, int) {
	j := i
	for j < cs.n {
		r, w := utf8.DecodeRuneInString(cs.text[j:])
		if !isWordRune(r) {
			break
		}
		j += w
	}

	if j < cs.n && cs.text[j] == ':' {
		k := j + 1
		for k < cs.n {
			r, w := utf8.DecodeRuneInString(cs.text[k:])
			if unicode.IsSpace(r) {
				break
			}
			k += w
		}
		if k > j+1 {
			return cs.text[i:k], k
		}
	}

	return cs.scanWordRun(i)
}

func (cs *cobeScanner) scanWordRun(i int) (string, int) {
	j := i
	for j < cs.n {
		r, w := utf8.DecodeRuneInString(cs.text[j:])
		if !isWordRune(r) && r != '\'' && r != '-' {
			break
		}
		j += w
	}
	return cs.text[i:j], j
}

// scanPunctuation starts on a non-word non-space rune. A cluster is a
// maximal run of non-word runes trimmed back to its last non-space
// rune; a run that trims down to the opening rune is a single
// punctuation token.
func (cs *cobeScanner) scanPunctuation(i int) (string, int) {
	_, w0 := utf8.DecodeRuneInString(cs.text[i:])
	j := i
	last := -1 // start of the last non-space rune seen
	for j < cs.n {
		r, w := utf8.DecodeRuneInString(cs.text[j:])
		if isWordRune(r) {
			break
		}
		if !unicode.IsSpace(r) {
			last = j
		}
		j += w
	}

	if last > i {
		_, w := utf8.DecodeRuneInString(cs.text[last:])
		return cs.text[i : last+w], last + w
	}
	return cs.text[i : i+w0], i + w0
}

package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MegaHALTokenizer is compatible with MegaHAL brain files: text is
// upper-cased and terminated with sentence-ending punctuation before
// being split into runs of letters+apostrophe, digits, or everything
// else.
type MegaHALTokenizer struct{}

func (MegaHALTokenizer) Split(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	text = strings.ToUpper(text)
	switch text[len(text)-1] {
	case '.', '!', '?':
	default:
		text += "."
	}

	var tokens []string
	i := 0
	for i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		var j int
		switch {
		case unicode.IsLetter(r) || r == '\'':
			j = scanClass(text, i, func(r rune) bool {
				return unicode.IsLetter(r) || r == '\''
			})
		case unicode.IsDigit(r):
			j = scanClass(text, i, unicode.IsDigit)
		default:
			j = scanClass(text, i, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
			})
		}
		tokens = append(tokens, text[i:j])
		i = j
	}

	return tokens
}

// Join concatenates and re-cases: the first alphabetic character is
// upper-cased, later ones lower-cased, and an alphabetic turns upper
// again after a sentence end followed by a space.
func (MegaHALTokenizer) Join(tokens []string) string {
	joined := strings.Join(tokens, "")

	var b strings.Builder
	b.Grow(len(joined))

	start := true
	var prev rune
	for _, r := range joined {
		if unicode.IsLetter(r) {
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
		} else {
			if unicode.IsSpace(r) && (prev == '.' || prev == '?' || prev == '!') {
				start = true
			}
			b.WriteRune(r)
		}
		prev = r
	}

	return b.String()
}

func scanClass(text string, i int, class func(rune) bool) int {
	for i < len(text) {
		r, w := utf8.DecodeRuneInString(text[i:])
		if !class(r) {
			break
		}
		i += w
	}
	return i
}

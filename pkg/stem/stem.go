// Package stem conflates morphological variants of a word onto a
// shared stem, so "jumping" can pivot a reply through "jumped".
package stem

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Stemmer maps a word to its lowercase stem. Tokens with no letter or
// digit return the empty string and get no stem row.
type Stemmer interface {
	Stem(word string) string
}

// languages supported by the snowball implementation.
var languages = map[string]bool{
	"english":   true,
	"spanish":   true,
	"french":    true,
	"russian":   true,
	"swedish":   true,
	"norwegian": true,
	"hungarian": true,
}

type snowballStemmer struct {
	lang string
}

// New returns a Porter2-family stemmer for the given language tag.
func New(lang string) (Stemmer, error) {
	lang = strings.ToLower(lang)
	if !languages[lang] {
		return nil, fmt.Errorf("unsupported stemmer language %q", lang)
	}
	return snowballStemmer{lang: lang}, nil
}

func (s snowballStemmer) Stem(word string) string {
	if !hasWordRune(word) {
		return ""
	}

	stemmed, err := snowball.Stem(strings.ToLower(word), s.lang, true)
	if err != nil {
		return ""
	}
	return stemmed
}

func hasWordRune(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

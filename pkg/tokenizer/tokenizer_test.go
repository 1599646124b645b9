package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tok, err := New("Cobe")
	require.NoError(t, err)
	assert.IsType(t, CobeTokenizer{}, tok)

	tok, err = New("MegaHAL")
	require.NoError(t, err)
	assert.IsType(t, MegaHALTokenizer{}, tok)

	_, err = New("Eliza")
	assert.Error(t, err)
}

func TestCobeSplit(t *testing.T) {
	tok := CobeTokenizer{}

	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"hi", []string{"hi"}},
		{"hi.", []string{"hi", "."}},
		{"hi, cobe", []string{"hi", ",", " ", "cobe"}},
		{"don't", []string{"don't"}},
		{"hy-phen", []string{"hy-phen"}},
		{"a - b", []string{"a", " ", "-", " ", "b"}},
		{":)", []string{":)"}},
		{":-)", []string{":-)"}},
		{"!?!", []string{"!?!"}},
		{"a  b", []string{"a", " ", "b"}},
		{"  trimmed  ", []string{"trimmed"}},
		{"http://www.google.com/", []string{"http://www.google.com/"}},
		{"a http://x.io/y b", []string{"a", " ", "http://x.io/y", " ", "b"}},
		// A colon with nothing attached is plain punctuation.
		{"cobe cobe:", []string{"cobe", " ", "cobe", ":"}},
		{"cobe: hi", []string{"cobe", ":", " ", "hi"}},
		{"héllo wörld", []string{"héllo", " ", "wörld"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.Split(tt.input), "input %q", tt.input)
	}
}

func TestCobeJoin(t *testing.T) {
	tok := CobeTokenizer{}
	assert.Equal(t, "hi, cobe.", tok.Join([]string{"hi", ",", " ", "cobe", "."}))
}

func TestCobeRoundTrip(t *testing.T) {
	tok := CobeTokenizer{}

	// Split then Join reproduces the input up to whitespace stripping
	// and whitespace-run collapse.
	for _, text := range []string{
		"the quick brown fox",
		"hi, how are you?",
		"it's a hy-phen :)",
		"check http://example.com/page now",
	} {
		assert.Equal(t, text, tok.Join(tok.Split(text)))
	}

	assert.Equal(t, "a b", tok.Join(tok.Split("  a   b  ")))
}

func TestMegaHALSplit(t *testing.T) {
	tok := MegaHALTokenizer{}

	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"hello there", []string{"HELLO", " ", "THERE", "."}},
		{"hi!", []string{"HI", "!"}},
		{"already ended?", []string{"ALREADY", " ", "ENDED", "?"}},
		{"it's 5 o'clock", []string{"IT'S", " ", "5", " ", "O'CLOCK", "."}},
		{"one,two", []string{"ONE", ",", "TWO", "."}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.Split(tt.input), "input %q", tt.input)
	}
}

func TestMegaHALJoin(t *testing.T) {
	tok := MegaHALTokenizer{}

	joined := tok.Join([]string{"HELLO", " ", "THERE", ".", " ", "HOW", " ", "ARE", " ", "YOU", "?"})
	assert.Equal(t, "Hello there. How are you?", joined)

	// Capitalization restarts only after sentence end plus space.
	joined = tok.Join([]string{"V1", ".", "2", " ", "WORKS", "."})
	assert.Equal(t, "V1.2 works.", joined)
}

func TestMegaHALRoundTrip(t *testing.T) {
	tok := MegaHALTokenizer{}
	got := tok.Join(tok.Split("hello there. how are you"))
	assert.Equal(t, "Hello there. How are you.", got)
}

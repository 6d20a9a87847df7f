package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// suffixLemmatizer is a deterministic stand-in for a dictionary model
type suffixLemmatizer map[string]string

func (s suffixLemmatizer) Lemma(word string) string {
	if lemma, ok := s[word]; ok {
		return lemma
	}
	return word
}

func TestClean(t *testing.T) {
	n := New(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "mention", in: "@trader99 thinks $DJT is going UP", want: "thinks is going up"},
		{name: "hashtag keeps word", in: "#Bullish on this", want: "bullish on this"},
		{name: "url", in: "read https://example.com/a?b=c now", want: "read now"},
		{name: "www", in: "see www.example.org today", want: "see today"},
		{name: "domain suffix", in: "via reuters.com and cnbc.news", want: "via and"},
		{name: "symbols", in: "Wow!!! 100% legit... :)", want: "wow 100 legit"},
		{name: "whitespace", in: "  a \t\n  b  ", want: "a b"},
		{name: "only noise", in: "@x $Y https://z.io #", want: ""},
		{name: "unicode dropped", in: "café crème", want: "caf crme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Clean(tt.in))
		})
	}
}

func TestNormalizeLemmatizes(t *testing.T) {
	n := New(suffixLemmatizer{"stocks": "stock", "rallied": "rally", "don't": "do"})
	assert.Equal(t, "stock rally hard", n.Normalize("Stocks RALLIED hard!"))
}

func TestNormalizeRecleansLemmas(t *testing.T) {
	n := New(suffixLemmatizer{"us": "U.S.", "gonna": "-"})
	assert.Equal(t, "us gonna win", n.Normalize("us gonna win"))
}

func TestNormalizeEmpty(t *testing.T) {
	n := New(suffixLemmatizer{})
	assert.Equal(t, "", n.Normalize("   "))
	assert.Equal(t, "", n.Normalize("@only #"))
}

func TestNormalizeProperties(t *testing.T) {
	n := New(suffixLemmatizer{"running": "Run"})
	inputs := []string{
		"@Elon says $TSLA to the MOON 🚀 https://t.co/xyz #tesla",
		"Breaking: Fed cuts rates (again) - www.bloomberg.com",
		"RUNNING out of $$$ money!!! @@@ ### http://a.b",
		"mixed Case, commas; semicolons: and \"quotes\"",
		"email me at joe@example.net",
		"",
	}

	for _, in := range inputs {
		out := n.Normalize(in)
		for _, banned := range []string{"@", "#", "http://", "https://", "$"} {
			assert.NotContains(t, out, banned, "input %q", in)
		}
		assert.Equal(t, strings.ToLower(out), out, "input %q", in)
		assert.Equal(t, out, n.Normalize(out), "normalize should be stable on its output for %q", in)
	}
}

// Package textnorm cleans and lemmatizes scraped text before scoring.
package textnorm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Lemmatizer reduces a single lowercase word to its base form
type Lemmatizer interface {
	Lemma(word string) string
}

// Patterns applied in order by Clean
var (
	mentionRe  = regexp.MustCompile(`@[A-Za-z0-9]+`)
	hashtagRe  = regexp.MustCompile(`#`)
	urlRe      = regexp.MustCompile(`https?://\S+|www\S+`)
	domainRe   = regexp.MustCompile(`\S*\.(com|org|gov|edu|net|news)\S*`)
	tickerRe   = regexp.MustCompile(`\$\S+`)
	nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9\s]+`)
)

// Normalizer turns raw text into lowercase, symbol-free, lemmatized text.
// Output is deterministic for a given input and lemmatizer.
type Normalizer struct {
	lemmatizer Lemmatizer
}

// New creates a Normalizer. A nil lemmatizer leaves tokens unchanged.
func New(l Lemmatizer) *Normalizer {
	return &Normalizer{lemmatizer: l}
}

// NewGolemLemmatizer loads the English golem dictionary
func NewGolemLemmatizer() (Lemmatizer, error) {
	l, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load english lemma dictionary: %w", err)
	}
	return l, nil
}

// Clean strips mentions, hashtag marks, URLs, domain-like tokens, $TICKER
// tokens and every non-alphanumeric character, collapses whitespace and
// lowercases.
func (n *Normalizer) Clean(s string) string {
	s = mentionRe.ReplaceAllString(s, "")
	s = hashtagRe.ReplaceAllString(s, "")
	s = urlRe.ReplaceAllString(s, "")
	s = domainRe.ReplaceAllString(s, "")
	s = tickerRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, "")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Normalize cleans s and lemmatizes it token by token. The result may be
// empty; callers drop such records.
func (n *Normalizer) Normalize(s string) string {
	cleaned := n.Clean(s)
	if cleaned == "" || n.lemmatizer == nil {
		return cleaned
	}

	tokens := strings.Fields(cleaned)
	lemmas := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		lemma := n.lemmatizer.Lemma(tok)
		// dictionary lemmas can carry apostrophes, hyphens or capitals
		lemma = strings.ToLower(nonAlnumRe.ReplaceAllString(lemma, ""))
		if lemma == "" {
			lemma = tok
		}
		lemmas = append(lemmas, lemma)
	}
	return strings.Join(lemmas, " ")
}

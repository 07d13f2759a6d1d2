package intent

import (
	"fmt"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// LemmaClassifier compares the lemmas of a prompt with the lemmas of the
// keywords, so "structures" or "hierarchies" match as well.
type LemmaClassifier struct {
	lem     *golem.Lemmatizer
	phrases [][]string
}

// NewLemmaClassifier loads the English dictionary and lemmatizes keywords.
func NewLemmaClassifier(keywords ...string) (*LemmaClassifier, error) {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemmatizer: %w", err)
	}
	lc := &LemmaClassifier{lem: lem}
	for _, k := range keywords {
		if p := lc.lemmas(k); len(p) > 0 {
			lc.phrases = append(lc.phrases, p)
		}
	}
	return lc, nil
}

func (l *LemmaClassifier) lemmas(s string) []string {
	words := tokenize(s)
	for i, w := range words {
		words[i] = l.lem.Lemma(w)
	}
	return words
}

// IsStructureQuery reports whether the prompt's lemmas contain a keyword phrase.
func (l *LemmaClassifier) IsStructureQuery(prompt string) bool {
	words := l.lemmas(prompt)
	for _, p := range l.phrases {
		if containsPhrase(words, p) {
			return true
		}
	}
	return false
}

// Name implements Classifier.
func (l *LemmaClassifier) Name() string { return "lemma" }

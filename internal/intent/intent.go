// Package intent decides whether a chat prompt asks about the
// organizational structure. Two classifiers exist: one backed by an English
// lemmatizer and a plain keyword matcher used when the lemmatizer is
// disabled or fails to load. The choice is made once, at startup.
package intent

import (
	"regexp"
	"strings"
)

// Classifier tells structure queries apart from everything else.
type Classifier interface {
	IsStructureQuery(prompt string) bool
	// Name identifies the implementation in logs.
	Name() string
}

// DefaultKeywords are the phrases that mark a structure query. Multi-word
// entries must appear as a contiguous phrase.
var DefaultKeywords = []string{
	"structure",
	"hierarchy",
	"org chart",
	"orgchart",
	"organigram",
	"organogram",
	"subdivision",
}

// New returns the lemmatizer-backed classifier when useLemmatizer is set and
// the dictionary loads. Otherwise it returns the keyword classifier; a
// non-nil error then explains why the lemmatizer was not used.
func New(useLemmatizer bool, keywords ...string) (Classifier, error) {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if !useLemmatizer {
		return NewKeywordClassifier(keywords...), nil
	}
	lc, err := NewLemmaClassifier(keywords...)
	if err != nil {
		return NewKeywordClassifier(keywords...), err
	}
	return lc, nil
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// tokenize lowercases s and returns its words in order.
func tokenize(s string) []string {
	return wordRE.FindAllString(strings.ToLower(s), -1)
}

// containsPhrase reports whether phrase occurs in words as a contiguous run.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j, p := range phrase {
			if words[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

package intent

import "strings"

// KeywordClassifier matches keyword phrases against whole words of the
// prompt, case-insensitively. A trailing plural ending is tolerated, so
// "structures" matches "structure" while "infrastructure" does not.
type KeywordClassifier struct {
	phrases [][]string
}

// NewKeywordClassifier builds a classifier; no keywords means DefaultKeywords.
func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	kc := &KeywordClassifier{}
	for _, k := range keywords {
		words := tokenize(k)
		for i, w := range words {
			words[i] = singular(w)
		}
		if len(words) > 0 {
			kc.phrases = append(kc.phrases, words)
		}
	}
	return kc
}

// IsStructureQuery reports whether prompt contains any keyword phrase.
func (k *KeywordClassifier) IsStructureQuery(prompt string) bool {
	words := tokenize(prompt)
	for i, w := range words {
		words[i] = singular(w)
	}
	for _, p := range k.phrases {
		if containsPhrase(words, p) {
			return true
		}
	}
	return false
}

// Name implements Classifier.
func (k *KeywordClassifier) Name() string { return "keyword" }

// singular strips a regular English plural ending. Words of three letters or
// fewer are left alone.
func singular(w string) string {
	switch {
	case len(w) <= 3:
		return w
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

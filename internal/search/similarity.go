package search

import "math"

// TokenSet is a set of tokens used for membership tests.
type TokenSet map[string]struct{}

func NewTokenSet(tokens []string) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func (s TokenSet) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// Similarity returns the Jaccard coefficient of the token sets of a and b.
func (t *Tokenizer) Similarity(a, b string) float64 {
	setA := NewTokenSet(t.Normalize(a))
	setB := NewTokenSet(t.Normalize(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if setB.Contains(token) {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Relevance scores doc against the query set: every document token that
// is in query counts, repeats included, and the count is divided by the
// square root of the document's token count. The score is not capped at 1.
func (t *Tokenizer) Relevance(doc Document, query TokenSet) float64 {
	tokens := t.Normalize(doc.Content())
	if len(tokens) == 0 {
		return 0
	}

	matches := 0
	for _, token := range tokens {
		if query.Contains(token) {
			matches++
		}
	}
	return float64(matches) / math.Sqrt(float64(len(tokens)))
}

// MatchingKeywords returns the keywords that occur in doc, in keyword
// order, capped at limit (negative means no cap).
func (t *Tokenizer) MatchingKeywords(doc Document, keywords []string, limit int) []string {
	matching := make([]string, 0)
	if len(keywords) == 0 || limit == 0 {
		return matching
	}

	docTokens := NewTokenSet(t.Normalize(doc.Content()))
	for _, keyword := range keywords {
		if !docTokens.Contains(keyword) {
			continue
		}
		matching = append(matching, keyword)
		if limit > 0 && len(matching) == limit {
			break
		}
	}
	return matching
}

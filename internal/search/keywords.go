package search

import "sort"

// DefaultKeywordLimit caps keyword lists returned to clients.
const DefaultKeywordLimit = 20

// ExtractKeywords returns up to limit distinct tokens of text ordered by
// descending frequency; ties keep first-occurrence order. A negative limit
// means no cap. The result is never nil.
func (t *Tokenizer) ExtractKeywords(text string, limit int) []string {
	keywords := make([]string, 0)
	if limit == 0 {
		return keywords
	}

	counts := make(map[string]int)
	for _, token := range t.Normalize(text) {
		if _, seen := counts[token]; !seen {
			keywords = append(keywords, token)
		}
		counts[token]++
	}

	sort.SliceStable(keywords, func(i, j int) bool {
		return counts[keywords[i]] > counts[keywords[j]]
	})

	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

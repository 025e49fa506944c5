package search

// stopWords are dropped regardless of frequency. The list mixes English
// function words with words that carry no signal in an interest statement.
var stopWords = newStopWordSet(
	"a", "an", "the", "and", "or", "but", "is", "are", "was", "were",
	"be", "been", "being", "have", "has", "had", "do", "does", "did",
	"to", "from", "in", "out", "on", "off", "over", "under", "again",
	"further", "then", "once", "here", "there", "when", "where", "why",
	"how", "all", "any", "both", "each", "few", "more", "most", "other",
	"some", "such", "no", "nor", "not", "only", "own", "same", "so",
	"than", "too", "very", "s", "t", "can", "will", "just", "don", "should",
	"now", "of", "for", "with", "by", "about", "against", "between", "into",
	"through", "during", "before", "after", "above", "below", "up", "down",
	"that", "this", "these", "those", "am", "im", "your", "his", "her", "their",
	"my", "mine", "our", "ours", "its", "theirs", "you", "me", "him",
	"working", "work", "works", "worked", "using", "use", "uses", "used",
	"interest", "interested", "interesting", "interests",
)

func newStopWordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether word is in the built-in stop-word set.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

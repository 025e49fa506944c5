package search_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/storyrank/internal/search"
)

func TestExtractKeywords(t *testing.T) {
	tok := search.NewTokenizer()

	keywords := tok.ExtractKeywords("rust compiler rust borrow checker compiler rust", search.DefaultKeywordLimit)

	assert.Equal(t, []string{"rust", "compiler", "borrow", "checker"}, keywords)
}

func TestExtractKeywords_TiesKeepFirstOccurrence(t *testing.T) {
	tok := search.NewTokenizer()

	keywords := tok.ExtractKeywords("zebra apple mango apple zebra", -1)

	assert.Equal(t, []string{"zebra", "apple", "mango"}, keywords)
}

func TestExtractKeywords_Limits(t *testing.T) {
	tok := search.NewTokenizer()
	text := "alpha bravo charlie delta echo foxtrot"

	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{"Zero", 0, 0},
		{"Two", 2, 2},
		{"Larger than distinct", 50, 6},
		{"Unlimited", -1, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keywords := tok.ExtractKeywords(text, tt.limit)
			assert.NotNil(t, keywords)
			assert.Len(t, keywords, tt.expected)
		})
	}
}

func TestExtractKeywords_EmptyInput(t *testing.T) {
	tok := search.NewTokenizer()

	for _, limit := range []int{0, 1, 20, 100} {
		keywords := tok.ExtractKeywords("", limit)
		assert.NotNil(t, keywords)
		assert.Empty(t, keywords)
	}
	assert.Empty(t, tok.ExtractKeywords("   \n\t", 20))
}

func TestExtractKeywords_DefaultCap(t *testing.T) {
	tok := search.NewTokenizer()
	words := []string{
		"aaa", "bbb", "ccc", "ddd", "eee", "fff", "ggg", "hhh", "iii", "jjj",
		"kkk", "lll", "mmm", "nnn", "ooo", "ppp", "qqq", "rrr", "ttt", "uuu",
		"vvv", "www", "xxx", "yyy", "zzz",
	}
	text := ""
	for _, w := range words {
		text += w + " "
	}

	keywords := tok.ExtractKeywords(text, search.DefaultKeywordLimit)

	assert.Len(t, keywords, 20)
	assert.Equal(t, "aaa", keywords[0])
}

func TestSimilarity(t *testing.T) {
	tok := search.NewTokenizer()

	assert.Equal(t, 1.0, tok.Similarity("distributed systems papers", "distributed systems papers"))
	assert.Equal(t, 0.0, tok.Similarity("distributed systems papers", ""))
	assert.Equal(t, 0.0, tok.Similarity("", "distributed systems"))
	assert.Equal(t, 0.0, tok.Similarity("the and of", "the and of"))

	// {golang, compiler} vs {golang, runtime}: 1 / 3
	assert.InDelta(t, 1.0/3.0, tok.Similarity("golang compiler", "golang runtime"), 1e-9)

	// repetition does not matter for sets
	assert.Equal(t, 1.0, tok.Similarity("golang golang compiler", "compiler golang"))
}

func TestRelevance(t *testing.T) {
	tok := search.NewTokenizer()
	query := search.NewTokenSet(tok.Normalize("disease model R ecology"))

	require.True(t, query.Contains("disease"))
	require.True(t, query.Contains("model"))
	require.False(t, query.Contains("r"))

	pkg := search.Document{Title: "New R package for disease modeling"}
	cooking := search.Document{Title: "Cooking recipes for dinner"}

	// tokens: new, package, disease, modeling
	assert.InDelta(t, 1/math.Sqrt(4), tok.Relevance(pkg, query), 1e-9)
	assert.Equal(t, 0.0, tok.Relevance(cooking, query))
}

func TestRelevance_CountsRepeatsAndIsUnbounded(t *testing.T) {
	tok := search.NewTokenizer()
	query := search.NewTokenSet([]string{"golang"})

	doc := search.Document{Title: "golang golang golang", Text: "<p>golang</p>"}

	// four matches over four tokens
	assert.InDelta(t, 4/math.Sqrt(4), tok.Relevance(doc, query), 1e-9)
	assert.Greater(t, tok.Relevance(doc, query), 1.0)
}

func TestRelevance_EmptyDocument(t *testing.T) {
	tok := search.NewTokenizer()

	for _, query := range []search.TokenSet{nil, {}, search.NewTokenSet([]string{"anything"})} {
		assert.Equal(t, 0.0, tok.Relevance(search.Document{}, query))
		assert.Equal(t, 0.0, tok.Relevance(search.Document{Title: "the of and", Text: "<br/>123"}, query))
	}
}

func TestMatchingKeywords(t *testing.T) {
	tok := search.NewTokenizer()
	doc := search.Document{Title: "Postgres replication", Text: "logical replication for postgres clusters"}

	matching := tok.MatchingKeywords(doc, []string{"cluster", "kafka", "postgre", "replication"}, 10)
	assert.Equal(t, []string{"cluster", "postgre", "replication"}, matching)

	assert.Equal(t, []string{"cluster"}, tok.MatchingKeywords(doc, []string{"cluster", "postgre"}, 1))
	assert.Empty(t, tok.MatchingKeywords(doc, nil, 10))
	assert.NotNil(t, tok.MatchingKeywords(doc, nil, 10))
}

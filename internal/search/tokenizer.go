package search

import (
	"regexp"
	"slices"
	"strings"
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	nonWordPattern = regexp.MustCompile(`[^\w\s]`)
	digitPattern   = regexp.MustCompile(`\d+`)
)

// minTokenLen is exclusive: tokens must be longer than this.
const minTokenLen = 2

// TokenCache memoizes Normalize results keyed by the exact input text.
type TokenCache interface {
	Get(text string) ([]string, bool)
	Put(text string, tokens []string)
}

// Tokenizer turns raw text into normalized tokens.
type Tokenizer struct {
	segmenter Segmenter
	stopWords map[string]struct{}
	cache     TokenCache
}

type Option func(*Tokenizer)

// WithSegmenter replaces the default UAX#29 segmenter.
func WithSegmenter(s Segmenter) Option {
	return func(t *Tokenizer) {
		if s != nil {
			t.segmenter = s
		}
	}
}

// WithCache memoizes Normalize through c.
func WithCache(c TokenCache) Option {
	return func(t *Tokenizer) {
		t.cache = c
	}
}

// WithStopWords adds words to the built-in stop-word set.
func WithStopWords(words ...string) Option {
	return func(t *Tokenizer) {
		for _, w := range words {
			t.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

func NewTokenizer(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		segmenter: UnicodeSegmenter{},
		stopWords: make(map[string]struct{}, len(stopWords)),
	}
	for w := range stopWords {
		t.stopWords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Normalize returns the ordered, non-deduplicated tokens of text.
// It accepts any input, including invalid UTF-8, and never fails.
func (t *Tokenizer) Normalize(text string) []string {
	if t.cache != nil {
		if tokens, ok := t.cache.Get(text); ok {
			return slices.Clone(tokens)
		}
	}

	tokens := t.normalize(text)

	if t.cache != nil {
		t.cache.Put(text, slices.Clone(tokens))
	}
	return tokens
}

func (t *Tokenizer) normalize(text string) []string {
	clean := strings.ToLower(text)
	clean = htmlTagPattern.ReplaceAllString(clean, " ")
	clean = urlPattern.ReplaceAllString(clean, " ")
	clean = nonWordPattern.ReplaceAllString(clean, " ")
	clean = digitPattern.ReplaceAllString(clean, " ")

	terms := t.segmenter.Segment(clean)
	tokens := make([]string, 0, len(terms))
	for _, term := range terms {
		// segmenters may hand back mixed case
		term = strings.ToLower(term)
		if !t.keep(term) {
			continue
		}
		// naive singular: one trailing "s" only ("glass" -> "glas")
		term = strings.TrimSuffix(term, "s")
		if !t.keep(term) {
			continue
		}
		tokens = append(tokens, term)
	}
	return tokens
}

func (t *Tokenizer) keep(term string) bool {
	if len(term) <= minTokenLen {
		return false
	}
	_, stop := t.stopWords[term]
	return !stop
}

// IsStopWord reports whether word is filtered by this tokenizer.
func (t *Tokenizer) IsStopWord(word string) bool {
	_, ok := t.stopWords[word]
	return ok
}

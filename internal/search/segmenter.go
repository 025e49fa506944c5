package search

import (
	"strings"
	"unicode"

	"github.com/blevesearch/segment"
)

// Segmenter splits cleaned text into raw terms, preserving order.
type Segmenter interface {
	Segment(text string) []string
}

// UnicodeSegmenter splits on UAX#29 word boundaries and keeps letter words.
type UnicodeSegmenter struct{}

func (UnicodeSegmenter) Segment(text string) []string {
	segmenter := segment.NewWordSegmenter(strings.NewReader(text))
	terms := make([]string, 0)
	for segmenter.Segment() {
		if segmenter.Type() != segment.Letter {
			continue
		}
		// UAX#29 keeps "_" inside words; terms are letters only
		terms = append(terms, letterRuns(segmenter.Text())...)
	}
	if segmenter.Err() != nil {
		return FieldSegmenter{}.Segment(text)
	}
	return terms
}

// FieldSegmenter splits on every non-letter rune.
type FieldSegmenter struct{}

func (FieldSegmenter) Segment(text string) []string {
	return letterRuns(text)
}

func letterRuns(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

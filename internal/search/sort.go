package search

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// SortKey selects the order of a ranked list.
type SortKey int

const (
	SortByRelevance SortKey = iota
	SortByScore
	SortByDate
)

var ErrUnknownSortKey = errors.New("unknown sort key")

func (k SortKey) String() string {
	switch k {
	case SortByRelevance:
		return "relevance"
	case SortByScore:
		return "score"
	case SortByDate:
		return "date"
	default:
		return fmt.Sprintf("SortKey(%d)", int(k))
	}
}

// ParseSortKey maps "relevance", "score" and "date" to a SortKey.
// The empty string selects relevance.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relevance":
		return SortByRelevance, nil
	case "score":
		return SortByScore, nil
	case "date":
		return SortByDate, nil
	default:
		return SortByRelevance, fmt.Errorf("%w: %q", ErrUnknownSortKey, s)
	}
}

// Comparator returns a descending comparison for key. Unknown keys fall
// back to relevance so the order is always total.
func Comparator(key SortKey) func(a, b Document) int {
	switch key {
	case SortByScore:
		return func(a, b Document) int { return cmp.Compare(b.Score, a.Score) }
	case SortByDate:
		return func(a, b Document) int { return cmp.Compare(b.Time, a.Time) }
	default:
		return func(a, b Document) int { return cmp.Compare(b.RelevanceScore, a.RelevanceScore) }
	}
}

// SortDocuments sorts docs in place; equal elements keep their order.
func SortDocuments(docs []Document, key SortKey) {
	slices.SortStableFunc(docs, Comparator(key))
}

// RelevancePercent is the display form of a raw score. It is not clamped,
// so dense short documents can exceed 100.
func RelevancePercent(score float64) int {
	return int(math.Round(score * 100))
}

// FilterByRelevance keeps documents whose RelevancePercent is at least
// minPercent. A non-positive threshold keeps everything.
func FilterByRelevance(docs []Document, minPercent int) []Document {
	if minPercent <= 0 {
		return docs
	}
	kept := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if RelevancePercent(doc.RelevanceScore) >= minPercent {
			kept = append(kept, doc)
		}
	}
	return kept
}

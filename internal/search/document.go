package search

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Document represents a story fetched from the upstream source.
// Field names follow the Hacker News item API.
type Document struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Text        string  `json:"text,omitempty"` // may contain HTML
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Score       int     `json:"score"`
	Kids        []int64 `json:"kids,omitempty"`
	Descendants int     `json:"descendants,omitempty"`
	Type        string  `json:"type"`
	Dead        bool    `json:"dead,omitempty"`
	Deleted     bool    `json:"deleted,omitempty"`

	// RelevanceScore is written by the ranker; everything else is read-only.
	RelevanceScore float64 `json:"relevanceScore"`
}

// Content returns the text used for relevance scoring: title and body.
func (d Document) Content() string {
	return d.Title + " " + d.Text
}

// PlainText returns the visible text of an HTML fragment with entities
// decoded and whitespace collapsed.
func PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var textBuilder strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have
			return strings.Join(strings.Fields(textBuilder.String()), " ")
		case html.TextToken:
			textBuilder.Write(tokenizer.Text())
			textBuilder.WriteByte(' ')
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			textBuilder.WriteByte(' ')
		}
	}
}

const ellipsis = "..."

// Excerpt returns the document's plain text cut to at most limit runes,
// ellipsis included. A non-positive limit returns the whole text.
func (d Document) Excerpt(limit int) string {
	txt := PlainText(d.Text)
	if limit <= 0 || utf8.RuneCountInString(txt) <= limit {
		return txt
	}
	runes := []rune(txt)
	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}
	return strings.TrimRight(string(runes[:limit-len(ellipsis)]), " ") + ellipsis
}

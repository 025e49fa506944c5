package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/search"
)

// FeedSource reads stories from an RSS or Atom feed, such as an HN mirror.
type FeedSource struct {
	fetcher *Fetcher
	feedURL string
	parser  *gofeed.Parser
	logger  *logrus.Entry
}

func NewFeedSource(f *Fetcher, feedURL, userAgent string, logger *logrus.Entry) *FeedSource {
	if logger == nil {
		logger = logrus.WithField("component", "feed")
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = f.Client()

	return &FeedSource{
		fetcher: f,
		feedURL: feedURL,
		parser:  parser,
		logger:  logger,
	}
}

func (s *FeedSource) Name() string {
	return config.UpstreamFeed
}

func (s *FeedSource) FetchStories(ctx context.Context, limit int) ([]search.Document, error) {
	if s.fetcher.pacer != nil {
		if err := s.fetcher.pacer.Wait(ctx, s.feedURL); err != nil {
			return nil, err
		}
	}

	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", s.feedURL, err)
	}

	stories := make([]search.Document, 0, len(feed.Items))
	for _, item := range feed.Items {
		if limit >= 0 && len(stories) == limit {
			break
		}
		doc, ok := documentFromItem(item)
		if !ok {
			s.logger.WithField("guid", item.GUID).Debug("Skipping feed item without title")
			continue
		}
		stories = append(stories, doc)
	}
	return stories, nil
}

func documentFromItem(item *gofeed.Item) (search.Document, bool) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return search.Document{}, false
	}

	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title
	}

	text := item.Content
	if text == "" {
		text = item.Description
	}

	doc := search.Document{
		// masked to stay positive in JSON consumers that use doubles
		ID:    int64(xxhash.Sum64String(key) & (1<<53 - 1)),
		Title: item.Title,
		URL:   item.Link,
		Text:  text,
		Type:  "story",
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		doc.By = item.Authors[0].Name
	}
	switch {
	case item.PublishedParsed != nil:
		doc.Time = item.PublishedParsed.Unix()
	case item.UpdatedParsed != nil:
		doc.Time = item.UpdatedParsed.Unix()
	}
	return doc, true
}

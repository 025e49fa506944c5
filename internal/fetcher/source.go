package fetcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/search"
)

// Source loads the current batch of stories from upstream.
type Source interface {
	Name() string
	// FetchStories returns at most limit stories in upstream order.
	// Individual unusable items are skipped; an error means no batch.
	FetchStories(ctx context.Context, limit int) ([]search.Document, error)
}

// NewSource builds the source selected by cfg.Upstream.Kind.
func NewSource(cfg *config.Config, pacer Pacer, logger *logrus.Entry) (Source, error) {
	f := NewFetcher(cfg.Upstream.RequestTimeout, cfg.Politeness.UserAgent, pacer)

	switch cfg.Upstream.Kind {
	case config.UpstreamHackerNews:
		return NewHackerNewsSource(f, cfg.Upstream, logger), nil
	case config.UpstreamFeed:
		return NewFeedSource(f, cfg.Upstream.FeedURL, cfg.Politeness.UserAgent, logger), nil
	default:
		return nil, fmt.Errorf("unknown upstream kind %q", cfg.Upstream.Kind)
	}
}

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/politeness"
	"github.com/knowledge-engine/storyrank/internal/search"
)

// HackerNewsSource reads the top stories from the Hacker News Firebase API.
type HackerNewsSource struct {
	fetcher *Fetcher
	config  config.UpstreamConfig
	logger  *logrus.Entry
}

func NewHackerNewsSource(f *Fetcher, cfg config.UpstreamConfig, logger *logrus.Entry) *HackerNewsSource {
	if logger == nil {
		logger = logrus.WithField("component", "hackernews")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &HackerNewsSource{
		fetcher: f,
		config:  cfg,
		logger:  logger,
	}
}

func (s *HackerNewsSource) Name() string {
	return config.UpstreamHackerNews
}

func (s *HackerNewsSource) FetchStories(ctx context.Context, limit int) ([]search.Document, error) {
	ids, err := s.topStoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]*search.Document, len(ids))
	var g errgroup.Group
	g.SetLimit(s.config.BatchSize)

	for i, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			doc, err := s.item(ctx, id)
			if err != nil {
				s.logger.WithError(err).WithField("id", id).Warn("Skipping story")
				return nil
			}
			results[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch stories: %w", err)
	}

	stories := make([]search.Document, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			stories = append(stories, *doc)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(ids),
		"fetched":   len(stories),
	}).Debug("Fetched story batch")
	return stories, nil
}

func (s *HackerNewsSource) topStoryIDs(ctx context.Context) ([]int64, error) {
	url := s.endpoint("topstories.json")

	policy := backoff.NewExponentialBackOff()
	if s.config.RetryInitialInterval > 0 {
		policy.InitialInterval = s.config.RetryInitialInterval
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(s.config.MaxRetries, 0))), ctx)

	var ids []int64
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ids = nil
		err := s.fetcher.GetJSON(ctx, url, &ids)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, politeness.ErrDisallowed) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		s.logger.WithError(err).WithField("attempt", attempt).Warn("Top stories request failed")
		return err
	}, retry)
	if err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}
	return ids, nil
}

// item returns nil with an error for anything that is not a live story.
func (s *HackerNewsSource) item(ctx context.Context, id int64) (*search.Document, error) {
	var doc *search.Document
	if err := s.fetcher.GetJSON(ctx, s.endpoint(fmt.Sprintf("item/%d.json", id)), &doc); err != nil {
		return nil, err
	}
	switch {
	case doc == nil:
		return nil, errors.New("item is null")
	case doc.Dead || doc.Deleted:
		return nil, errors.New("item is dead or deleted")
	}
	return doc, nil
}

func (s *HackerNewsSource) endpoint(path string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + "/" + path
}

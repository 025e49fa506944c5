package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/storyrank/internal/cache"
	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/fetcher"
	"github.com/knowledge-engine/storyrank/internal/metrics"
	"github.com/knowledge-engine/storyrank/internal/politeness"
	"github.com/knowledge-engine/storyrank/internal/search"
)

var (
	// ErrEmptyQuery is returned for a query that is empty or only whitespace.
	ErrEmptyQuery = errors.New("query is required")
	// ErrUpstream wraps story source failures when no cached batch exists.
	ErrUpstream = errors.New("upstream unavailable")
)

// Engine ranks upstream stories against free-text interest statements.
type Engine struct {
	Config     *config.Config
	Logger     *logrus.Entry
	Tokenizer  *search.Tokenizer
	TokenCache *cache.TokenCache
	Collection *cache.CollectionCache
	Source     fetcher.Source
	Politeness *politeness.Guard
	Metrics    *metrics.Metrics

	mu    sync.RWMutex
	stats EngineStats
}

type EngineStats struct {
	RankRequests   int64     `json:"rankRequests"`
	FailedRequests int64     `json:"failedRequests"`
	StaleResponses int64     `json:"staleResponses"`
	LastError      string    `json:"lastError,omitempty"`
	LastFetch      time.Time `json:"lastFetch"`
	StartTime      time.Time `json:"startTime"`
}

type Option func(*options)

type options struct {
	source  fetcher.Source
	metrics *metrics.Metrics
	clock   func() time.Time
}

// WithSource replaces the story source built from the configuration.
func WithSource(src fetcher.Source) Option {
	return func(o *options) { o.source = src }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the clock used for collection cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func NewEngine(cfg *config.Config, logger *logrus.Entry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	guard := politeness.NewGuard(cfg.Politeness, logger.WithField("component", "politeness"))

	src := o.source
	if src == nil {
		var err error
		src, err = fetcher.NewSource(cfg, guard, logger.WithField("component", "fetcher"))
		if err != nil {
			return nil, err
		}
	}

	m := o.metrics
	if m == nil {
		m = metrics.New()
	}

	tokenCache := cache.NewTokenCache(cfg.Cache.TokenCacheSize, cfg.Cache.TokenEvictBatch)
	m.RegisterTokenCache(tokenCache.Stats)

	// one attempt per retry, each bounded by the upstream request timeout
	refreshTimeout := cfg.Upstream.RequestTimeout * time.Duration(max(cfg.Upstream.MaxRetries, 0)+1)
	cacheOpts := []cache.CollectionOption{cache.WithRefreshTimeout(refreshTimeout)}
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.clock))
	}

	return &Engine{
		Config:     cfg,
		Logger:     logger.WithField("component", "engine"),
		Tokenizer:  search.NewTokenizer(search.WithCache(tokenCache)),
		TokenCache: tokenCache,
		Collection: cache.NewCollectionCache(cfg.Cache.CollectionTTL, cacheOpts...),
		Source:     src,
		Politeness: guard,
		Metrics:    m,
		stats: EngineStats{
			StartTime: time.Now(),
		},
	}, nil
}

// RankResult is the outcome of ranking a fixed set of documents.
type RankResult struct {
	Documents []search.Document
	Keywords  []string
}

// Rank scores docs against query and returns copies sorted by descending
// relevance; equal scores keep their input order. docs is not modified.
func (e *Engine) Rank(docs []search.Document, query string) RankResult {
	keywords := e.Tokenizer.ExtractKeywords(query, e.Config.Ranking.KeywordLimit)
	querySet := search.NewTokenSet(e.Tokenizer.Normalize(query))

	ranked := slices.Clone(docs)
	if ranked == nil {
		ranked = []search.Document{}
	}
	for i := range ranked {
		ranked[i].RelevanceScore = e.Tokenizer.Relevance(ranked[i], querySet)
	}
	search.SortDocuments(ranked, search.SortByRelevance)

	return RankResult{Documents: ranked, Keywords: keywords}
}

type RankRequest struct {
	Query string
	Sort  search.SortKey
	// MinRelevance drops stories whose rounded percentage is below it.
	MinRelevance int
}

// RankedStory is a ranked document with the query keywords it contains.
type RankedStory struct {
	search.Document
	MatchingKeywords []string
}

type RankResponse struct {
	Stories        []RankedStory
	Keywords       []string
	CacheHit       bool
	Stale          bool
	Source         string
	ProcessingTime time.Duration
}

// RankStories loads the current story batch and ranks it for req.
func (e *Engine) RankStories(ctx context.Context, req RankRequest) (*RankResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		e.Metrics.ObserveRank("invalid", time.Since(start))
		return nil, ErrEmptyQuery
	}

	lookup, err := e.Collection.Get(ctx, e.fetchStories)
	if err != nil {
		e.recordFailure(err)
		e.Metrics.ObserveRank("upstream_error", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	e.Metrics.ObserveCollectionLookup(lookup.Result)

	if lookup.Result == cache.Stale {
		e.Logger.WithError(lookup.FetchErr).WithField("stories", len(lookup.Stories)).
			Warn("Upstream refresh failed, serving cached stories")
	}

	result := e.Rank(lookup.Stories, req.Query)
	docs := search.FilterByRelevance(result.Documents, req.MinRelevance)
	if req.Sort != search.SortByRelevance {
		search.SortDocuments(docs, req.Sort)
	}

	stories := make([]RankedStory, len(docs))
	for i, doc := range docs {
		stories[i] = RankedStory{
			Document:         doc,
			MatchingKeywords: e.Tokenizer.MatchingKeywords(doc, result.Keywords, e.Config.Ranking.MatchingKeywordLimit),
		}
	}

	took := time.Since(start)
	e.mu.Lock()
	e.stats.RankRequests++
	if lookup.Result == cache.Stale {
		e.stats.StaleResponses++
	}
	e.mu.Unlock()
	e.Metrics.ObserveRank("ok", took)

	e.Logger.WithFields(logrus.Fields{
		"stories":  len(stories),
		"keywords": len(result.Keywords),
		"cache":    lookup.Result.String(),
		"took":     took,
	}).Debug("Ranked stories")

	return &RankResponse{
		Stories:        stories,
		Keywords:       result.Keywords,
		CacheHit:       lookup.Result != cache.Miss,
		Stale:          lookup.Result == cache.Stale,
		Source:         e.Source.Name(),
		ProcessingTime: took,
	}, nil
}

// Keywords returns the keyword preview for text.
func (e *Engine) Keywords(text string) []string {
	return e.Tokenizer.ExtractKeywords(text, e.Config.Ranking.KeywordLimit)
}

func (e *Engine) fetchStories(ctx context.Context) ([]search.Document, error) {
	stories, err := e.Source.FetchStories(ctx, e.Config.Upstream.MaxStories)
	e.Metrics.ObserveUpstreamFetch(e.Source.Name(), len(stories), err)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.stats.LastFetch = time.Now()
	e.mu.Unlock()

	e.Logger.WithFields(logrus.Fields{
		"source":  e.Source.Name(),
		"stories": len(stories),
	}).Info("Refreshed story batch")
	return stories, nil
}

func (e *Engine) recordFailure(err error) {
	e.Logger.WithError(err).Error("Failed to load stories")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.FailedRequests++
	e.stats.LastError = err.Error()
}

// Status is a snapshot of engine, cache and politeness state.
type Status struct {
	Source     string                `json:"source"`
	Engine     EngineStats           `json:"engine"`
	TokenCache cache.TokenCacheStats `json:"tokenCache"`
	Collection cache.CollectionStats `json:"collection"`
	Politeness politeness.Statistics `json:"politeness"`
}

func (e *Engine) Status() Status {
	return Status{
		Source:     e.Source.Name(),
		Engine:     e.Stats(),
		TokenCache: e.TokenCache.Stats(),
		Collection: e.Collection.Stats(),
		Politeness: e.Politeness.GetStatistics(),
	}
}

func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

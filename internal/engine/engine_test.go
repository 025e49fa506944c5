package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/engine"
	"github.com/knowledge-engine/storyrank/internal/logging"
	"github.com/knowledge-engine/storyrank/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Mocks

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Name() string {
	return "mock"
}

func (m *MockSource) FetchStories(ctx context.Context, limit int) ([]search.Document, error) {
	args := m.Called(ctx, limit)
	docs, _ := args.Get(0).([]search.Document)
	return docs, args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newEngine(t *testing.T, src *MockSource, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithSource(src)}, opts...)
	eng, err := engine.NewEngine(config.Default(), logging.Discard(), opts...)
	require.NoError(t, err)
	return eng
}

var frontPage = []search.Document{
	{ID: 1, Title: "Cooking recipes for dinner", Score: 300, Time: 1000},
	{ID: 2, Title: "New R package for disease modeling", Score: 50, Time: 900},
	{ID: 3, Title: "Ecology of disease: field notes", Text: "<p>Disease spread in wild populations</p>", Score: 120, Time: 1100},
	{ID: 4, Title: "Show HN: A tiny text editor", Score: 80, Time: 1200},
}

func TestNewEngine(t *testing.T) {
	eng, err := engine.NewEngine(config.Default(), logging.Discard())
	require.NoError(t, err)

	assert.NotNil(t, eng.Tokenizer)
	assert.NotNil(t, eng.TokenCache)
	assert.NotNil(t, eng.Collection)
	assert.NotNil(t, eng.Politeness)
	assert.NotNil(t, eng.Metrics)
	assert.Equal(t, "hackernews", eng.Source.Name())
	assert.False(t, eng.Stats().StartTime.IsZero())
}

func TestNewEngine_InvalidUpstream(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.Kind = "carrier-pigeon"

	_, err := engine.NewEngine(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestEngine_Rank_DiseaseScenario(t *testing.T) {
	eng := newEngine(t, new(MockSource))
	docs := []search.Document{
		{ID: 1, Title: "New R package for disease modeling"},
		{ID: 2, Title: "Cooking recipes for dinner"},
	}

	result := eng.Rank(docs, "I work on disease models in R and ecology")

	require.Len(t, result.Documents, 2)
	assert.Equal(t, int64(1), result.Documents[0].ID)
	assert.Greater(t, result.Documents[0].RelevanceScore, 0.0)
	assert.Equal(t, 0.0, result.Documents[1].RelevanceScore)
	assert.Equal(t, []string{"disease", "model", "ecology"}, result.Keywords)
}

func TestEngine_Rank_DoesNotMutateInput(t *testing.T) {
	eng := newEngine(t, new(MockSource))
	docs := []search.Document{
		{ID: 1, Title: "Cooking recipes"},
		{ID: 2, Title: "Rust compiler"},
	}

	result := eng.Rank(docs, "rust")

	assert.Equal(t, int64(2), result.Documents[0].ID)
	assert.Equal(t, int64(1), docs[0].ID)
	assert.Zero(t, docs[1].RelevanceScore)
}

func TestEngine_Rank_StableForEqualScores(t *testing.T) {
	eng := newEngine(t, new(MockSource))
	docs := []search.Document{
		{ID: 10, Title: "alpha"},
		{ID: 11, Title: "bravo"},
		{ID: 12, Title: "golang tips"},
		{ID: 13, Title: "charlie"},
	}

	result := eng.Rank(docs, "golang")

	ids := make([]int64, len(result.Documents))
	for i, d := range result.Documents {
		ids[i] = d.ID
	}
	assert.Equal(t, []int64{12, 10, 11, 13}, ids)
}

func TestEngine_Rank_EmptyInputs(t *testing.T) {
	eng := newEngine(t, new(MockSource))

	result := eng.Rank(nil, "anything at all")
	assert.NotNil(t, result.Documents)
	assert.Empty(t, result.Documents)

	result = eng.Rank([]search.Document{{ID: 1}}, "the and of")
	assert.Empty(t, result.Keywords)
	assert.Equal(t, 0.0, result.Documents[0].RelevanceScore)
}

func TestEngine_RankStories_EmptyQuery(t *testing.T) {
	src := new(MockSource)
	eng := newEngine(t, src)

	for _, query := range []string{"", "   ", "\n\t"} {
		resp, err := eng.RankStories(context.Background(), engine.RankRequest{Query: query})
		assert.ErrorIs(t, err, engine.ErrEmptyQuery)
		assert.Nil(t, resp)
	}

	src.AssertNotCalled(t, "FetchStories", mock.Anything, mock.Anything)
	assert.Equal(t, 0, eng.TokenCache.Stats().Entries)
}

func TestEngine_RankStories_CacheLifecycle(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(frontPage, nil).Once()
	eng := newEngine(t, src, engine.WithClock(clock.Now))
	req := engine.RankRequest{Query: "disease ecology"}

	first, err := eng.RankStories(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.False(t, first.Stale)
	assert.Equal(t, "mock", first.Source)

	clock.Advance(time.Minute)
	second, err := eng.RankStories(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.False(t, second.Stale)

	clock.Advance(5 * time.Minute)
	src.On("FetchStories", mock.Anything, 100).Return(nil, errors.New("firebase down")).Once()
	third, err := eng.RankStories(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.True(t, third.Stale)
	assert.Len(t, third.Stories, len(frontPage))

	src.AssertExpectations(t)
	stats := eng.Stats()
	assert.Equal(t, int64(3), stats.RankRequests)
	assert.Equal(t, int64(1), stats.StaleResponses)
}

func TestEngine_RankStories_UpstreamFailure(t *testing.T) {
	upstreamErr := errors.New("connection refused")
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(nil, upstreamErr)
	eng := newEngine(t, src)

	resp, err := eng.RankStories(context.Background(), engine.RankRequest{Query: "golang"})

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, engine.ErrUpstream)
	assert.ErrorIs(t, err, upstreamErr)

	stats := eng.Stats()
	assert.Equal(t, int64(1), stats.FailedRequests)
	assert.Contains(t, stats.LastError, "connection refused")
}

func TestEngine_RankStories_RankingAndKeywords(t *testing.T) {
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(frontPage, nil)
	eng := newEngine(t, src)

	resp, err := eng.RankStories(context.Background(), engine.RankRequest{Query: "Interested in disease ecology"})
	require.NoError(t, err)

	require.Len(t, resp.Stories, 4)
	assert.Equal(t, int64(3), resp.Stories[0].ID)
	assert.Equal(t, []string{"disease", "ecology"}, resp.Keywords)
	assert.Equal(t, []string{"disease", "ecology"}, resp.Stories[0].MatchingKeywords)
	assert.Equal(t, int64(2), resp.Stories[1].ID)
	assert.Equal(t, []string{"disease"}, resp.Stories[1].MatchingKeywords)
	for _, story := range resp.Stories[2:] {
		assert.Zero(t, story.RelevanceScore)
		assert.Empty(t, story.MatchingKeywords)
	}
	assert.Positive(t, resp.ProcessingTime)

	// the cached batch is untouched by ranking
	snapshot, _, ok := eng.Collection.Snapshot()
	require.True(t, ok)
	for _, doc := range snapshot {
		assert.Zero(t, doc.RelevanceScore)
	}
}

func TestEngine_RankStories_FilterAndSort(t *testing.T) {
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(frontPage, nil)
	eng := newEngine(t, src)

	resp, err := eng.RankStories(context.Background(), engine.RankRequest{
		Query:        "disease ecology",
		Sort:         search.SortByScore,
		MinRelevance: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Stories, 2)
	assert.Equal(t, int64(3), resp.Stories[0].ID)
	assert.Equal(t, int64(2), resp.Stories[1].ID)

	resp, err = eng.RankStories(context.Background(), engine.RankRequest{
		Query: "disease ecology",
		Sort:  search.SortByDate,
	})
	require.NoError(t, err)
	require.Len(t, resp.Stories, 4)
	assert.Equal(t, int64(4), resp.Stories[0].ID)
}

func TestEngine_KeywordsAndStatus(t *testing.T) {
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(frontPage, nil)
	eng := newEngine(t, src)

	assert.Equal(t, []string{"rust", "compiler"}, eng.Keywords("Rust rust compilers"))
	assert.Empty(t, eng.Keywords(""))

	_, err := eng.RankStories(context.Background(), engine.RankRequest{Query: "rust"})
	require.NoError(t, err)

	status := eng.Status()
	assert.Equal(t, "mock", status.Source)
	assert.Equal(t, int64(1), status.Engine.RankRequests)
	assert.Equal(t, 4, status.Collection.Stories)
	assert.Positive(t, status.TokenCache.Entries)
	assert.NotNil(t, status.Politeness.DomainStats)
}

func TestEngine_RankStories_Concurrent(t *testing.T) {
	src := new(MockSource)
	src.On("FetchStories", mock.Anything, 100).Return(frontPage, nil)
	eng := newEngine(t, src)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := eng.RankStories(context.Background(), engine.RankRequest{Query: "disease ecology editor"})
			if assert.NoError(t, err) {
				assert.Len(t, resp.Stories, 4)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(16), eng.Stats().RankRequests)
}

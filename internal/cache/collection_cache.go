package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/knowledge-engine/storyrank/internal/search"
)

const DefaultCollectionExpiry = 5 * time.Minute

// Result tells how a collection lookup was served.
type Result int

const (
	// Miss means the stories were fetched fresh from upstream.
	Miss Result = iota
	// Hit means a snapshot younger than the expiry was returned.
	Hit
	// Stale means the refresh failed and an expired snapshot was returned.
	Stale
)

func (r Result) String() string {
	switch r {
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// FetchFunc loads the current story batch from upstream.
type FetchFunc func(ctx context.Context) ([]search.Document, error)

// Lookup is the outcome of CollectionCache.Get. FetchErr carries the
// refresh failure when Result is Stale.
type Lookup struct {
	Stories  []search.Document
	Result   Result
	FetchErr error
}

type CollectionStats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Stale     int64     `json:"stale"`
	Failures  int64     `json:"failures"`
	Stories   int       `json:"stories"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type CollectionOption func(*CollectionCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CollectionOption {
	return func(c *CollectionCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshTimeout bounds a shared refresh. The refresh does not inherit
// the cancellation of the caller that started it, so without a bound it runs
// until fetch returns.
func WithRefreshTimeout(d time.Duration) CollectionOption {
	return func(c *CollectionCache) {
		c.refreshTimeout = d
	}
}

// CollectionCache holds the most recently fetched story batch in a single
// slot. Refreshes happen lazily on Get; concurrent refreshes share one fetch.
type CollectionCache struct {
	expiry         time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	group          singleflight.Group

	mu        sync.Mutex
	stories   []search.Document
	fetchedAt time.Time
	valid     bool
	stats     CollectionStats
}

func NewCollectionCache(expiry time.Duration, opts ...CollectionOption) *CollectionCache {
	if expiry <= 0 {
		expiry = DefaultCollectionExpiry
	}
	c := &CollectionCache{
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const refreshKey = "collection"

// Get returns the cached batch while it is fresh, otherwise calls fetch.
// When fetch fails and an older snapshot exists, the snapshot is returned
// with Result Stale and a nil error. The returned slice is shared and must
// not be modified.
func (c *CollectionCache) Get(ctx context.Context, fetch FetchFunc) (Lookup, error) {
	c.mu.Lock()
	if c.valid && c.now().Sub(c.fetchedAt) < c.expiry {
		c.stats.Hits++
		stories := c.stories
		c.mu.Unlock()
		return Lookup{Stories: stories, Result: Hit}, nil
	}
	c.mu.Unlock()

	// every waiter keeps its own deadline; one leaving must not fail the rest
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if c.refreshTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, c.refreshTimeout)
			defer cancel()
		}
		stories, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.store(stories)
		return stories, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case res = <-ch:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Err == nil {
		c.stats.Misses++
		return Lookup{Stories: res.Val.([]search.Document), Result: Miss}, nil
	}

	c.stats.Failures++
	if c.valid {
		c.stats.Stale++
		return Lookup{Stories: c.stories, Result: Stale, FetchErr: res.Err}, nil
	}
	return Lookup{FetchErr: res.Err}, fmt.Errorf("refresh collection: %w", res.Err)
}

func (c *CollectionCache) store(stories []search.Document) {
	if stories == nil {
		stories = []search.Document{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stories = stories
	c.fetchedAt = c.now()
	c.valid = true
}

// Snapshot returns a copy of the cached batch and when it was fetched.
// ok is false when nothing has been cached yet.
func (c *CollectionCache) Snapshot() (stories []search.Document, fetchedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, time.Time{}, false
	}
	return slices.Clone(c.stories), c.fetchedAt, true
}

// Invalidate forgets the snapshot so the next Get fetches.
func (c *CollectionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stories = nil
	c.fetchedAt = time.Time{}
	c.valid = false
}

func (c *CollectionCache) Stats() CollectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Stories = len(c.stories)
	stats.FetchedAt = c.fetchedAt
	return stats
}


package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/knowledge-engine/storyrank/internal/config"
)

// ErrDisallowed is returned when robots.txt forbids a URL for our agent.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Guard keeps upstream traffic polite: it honours robots.txt when enabled
// and paces requests per host with a token bucket.
type Guard struct {
	config config.PolitenessConfig
	logger *logrus.Entry
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*RobotsEntry
	robotsGroup singleflight.Group

	statsMu sync.RWMutex
	stats   Statistics
}

// RobotsEntry caches robots.txt data for one host. robots is nil when the
// host has no usable robots.txt.
type RobotsEntry struct {
	robots    *robotstxt.RobotsData
	fetchTime time.Time
}

// Statistics holds guard statistics
type Statistics struct {
	TotalRequests    int64                        `json:"total_requests"`
	RejectedRequests int64                        `json:"rejected_requests"`
	RobotsFetches    int64                        `json:"robots_fetches"`
	DomainStats      map[string]*DomainStatistics `json:"domain_stats"`
	StartTime        time.Time                    `json:"start_time"`
}

// DomainStatistics holds per-host statistics
type DomainStatistics struct {
	Domain           string        `json:"domain"`
	TotalRequests    int64         `json:"total_requests"`
	RejectedRequests int64         `json:"rejected_requests"`
	LastRequestTime  time.Time     `json:"last_request_time"`
	TotalWait        time.Duration `json:"total_wait"`
}

type Option func(*Guard)

// WithHTTPClient sets the client used to fetch robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Guard) {
		if client != nil {
			g.client = client
		}
	}
}

func NewGuard(cfg config.PolitenessConfig, logger *logrus.Entry, opts ...Option) *Guard {
	if logger == nil {
		logger = logrus.WithField("component", "politeness")
	}

	g := &Guard{
		config:      cfg,
		logger:      logger,
		client:      &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*RobotsEntry),
		stats: Statistics{
			DomainStats: make(map[string]*DomainStatistics),
			StartTime:   time.Now(),
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until a request to rawURL may be sent. It returns
// ErrDisallowed without waiting when robots.txt forbids the URL, and the
// context error if ctx ends first.
func (g *Guard) Wait(ctx context.Context, rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	domain := parsedURL.Host

	allowed, err := g.IsURLAllowed(ctx, rawURL)
	if err != nil {
		return err
	}
	if !allowed {
		g.updateStats(domain, func(s *Statistics, d *DomainStatistics) {
			s.RejectedRequests++
			d.RejectedRequests++
		})
		return fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}

	start := g.now()
	if err := g.limiter(domain).Wait(ctx); err != nil {
		return fmt.Errorf("politeness wait for %s: %w", domain, err)
	}
	waited := g.now().Sub(start)

	g.updateStats(domain, func(s *Statistics, d *DomainStatistics) {
		s.TotalRequests++
		d.TotalRequests++
		d.LastRequestTime = start
		d.TotalWait += waited
	})
	return nil
}

// IsURLAllowed checks robots.txt for rawURL. Fetch failures and missing
// robots files allow the request. It returns the context error if ctx ends
// before robots.txt is known.
func (g *Guard) IsURLAllowed(ctx context.Context, rawURL string) (bool, error) {
	if !g.config.EnableRobotsCheck {
		return true, nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	robotsData, err := g.getRobotsData(ctx, parsedURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		g.logger.WithError(err).WithField("domain", parsedURL.Host).Warn("Failed to get robots.txt, allowing request")
		return true, nil
	}
	if robotsData == nil {
		return true, nil
	}

	return robotsData.TestAgent(parsedURL.EscapedPath(), g.config.UserAgent), nil
}

func (g *Guard) limiter(domain string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.config.RequestsPerSecond), max(g.config.Burst, 1))
		g.limiters[domain] = l
	}
	return l
}

func (g *Guard) cachedRobots(domain string) (*robotstxt.RobotsData, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.robotsCache[domain]
	if !exists || g.now().Sub(entry.fetchTime) >= g.config.RobotsCacheDuration {
		return nil, false
	}
	return entry.robots, true
}

// getRobotsData returns the cached robots.txt for the target host, fetching
// it once for all concurrent callers when missing or expired.
func (g *Guard) getRobotsData(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	domain := target.Host
	if robots, ok := g.cachedRobots(domain); ok {
		return robots, nil
	}

	ch := g.robotsGroup.DoChan(domain, func() (any, error) {
		if robots, ok := g.cachedRobots(domain); ok {
			return robots, nil
		}
		// bounded by the client timeout, not by whichever caller started it
		return g.fetchRobots(context.WithoutCancel(ctx), target)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*robotstxt.RobotsData), nil
	}
}

func (g *Guard) fetchRobots(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	domain := target.Host
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: domain, Path: "/robots.txt"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", g.config.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	g.statsMu.Lock()
	g.stats.RobotsFetches++
	g.statsMu.Unlock()

	var robotsData *robotstxt.RobotsData
	if resp.StatusCode == http.StatusOK {
		robotsData, err = robotstxt.FromResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
		}
	}

	// cached even when nil so a missing file is not refetched every call
	g.mu.Lock()
	g.robotsCache[domain] = &RobotsEntry{
		robots:    robotsData,
		fetchTime: g.now(),
	}
	g.mu.Unlock()

	return robotsData, nil
}

// GetStatistics returns a deep copy of the current statistics.
func (g *Guard) GetStatistics() Statistics {
	g.statsMu.RLock()
	defer g.statsMu.RUnlock()

	stats := Statistics{
		TotalRequests:    g.stats.TotalRequests,
		RejectedRequests: g.stats.RejectedRequests,
		RobotsFetches:    g.stats.RobotsFetches,
		StartTime:        g.stats.StartTime,
		DomainStats:      make(map[string]*DomainStatistics, len(g.stats.DomainStats)),
	}
	for domain, domainStats := range g.stats.DomainStats {
		copied := *domainStats
		stats.DomainStats[domain] = &copied
	}
	return stats
}

func (g *Guard) updateStats(domain string, updateFn func(*Statistics, *DomainStatistics)) {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	domainStats, ok := g.stats.DomainStats[domain]
	if !ok {
		domainStats = &DomainStatistics{Domain: domain}
		g.stats.DomainStats[domain] = domainStats
	}
	updateFn(&g.stats, domainStats)
}

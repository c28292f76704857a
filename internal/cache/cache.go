// Package cache holds the process-wide result cache.
//
// An entry maps a record URL to the result report found for it, or to a
// known absence. A cached absence is a real answer: it stops the extractor
// from fetching the same result pages again until the entry expires.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/pkg/urlutil"
	"go.uber.org/zap"
)

// Entry is one cached outcome. An empty Report means "none found".
type Entry struct {
	Report   string    `json:"report,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Backend is an optional shared tier behind the in-memory map.
type Backend interface {
	LoadResult(ctx context.Context, key string) (Entry, bool, error)
	SaveResult(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// ResultCache is safe for concurrent use. Concurrent writers of the same key
// race benignly; the last write wins.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sweepAt int
	ttl     time.Duration
	now     func() time.Time
	backend Backend
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// minSweep is the map size at which Set first drops expired entries.
const minSweep = 1024

type Option func(*ResultCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithBackend adds a shared tier such as Redis.
func WithBackend(b Backend) Option {
	return func(c *ResultCache) { c.backend = b }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

func New(ttl time.Duration, logger *zap.Logger, opts ...Option) *ResultCache {
	c := &ResultCache{
		entries: make(map[string]Entry),
		sweepAt: minSweep,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is the cache key for a record URL.
func Key(rawURL string) string {
	return "result:" + urlutil.HashKey(rawURL)
}

// Get returns the cached report for url. ok is false when nothing fresh is
// cached; ok with an empty report is a cached absence.
func (c *ResultCache) Get(ctx context.Context, rawURL string) (report string, ok bool) {
	key := Key(rawURL)

	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if found && c.fresh(e) {
		c.countHit(e)
		return e.Report, true
	}
	if found {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !c.fresh(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}

	if c.backend != nil {
		e, found, err := c.backend.LoadResult(ctx, key)
		if err != nil {
			c.logger.Debug("result cache backend lookup failed", zap.String("url", rawURL), zap.Error(err))
		} else if found && c.fresh(e) {
			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
			c.countHit(e)
			return e.Report, true
		}
	}

	c.metrics.IncCacheLookup("miss")
	return "", false
}

// Set records the outcome for url. An empty report caches an absence.
func (c *ResultCache) Set(ctx context.Context, rawURL, report string) {
	key := Key(rawURL)
	e := Entry{Report: report, StoredAt: c.now()}

	c.mu.Lock()
	c.entries[key] = e
	if len(c.entries) >= c.sweepAt {
		c.sweepLocked()
	}
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.SaveResult(ctx, key, e, c.ttl); err != nil {
			c.logger.Debug("result cache backend write failed", zap.String("url", rawURL), zap.Error(err))
		}
	}
}

// Len is the number of in-memory entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLocked drops expired entries. The next sweep waits until the map has
// doubled from what survived, so Set stays amortised O(1).
func (c *ResultCache) sweepLocked() {
	before := len(c.entries)
	for k, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, k)
		}
	}
	c.sweepAt = max(2*len(c.entries), minSweep)
	c.logger.Debug("result cache swept", zap.Int("before", before), zap.Int("after", len(c.entries)))
}

func (c *ResultCache) fresh(e Entry) bool {
	return c.ttl <= 0 || c.now().Sub(e.StoredAt) < c.ttl
}

func (c *ResultCache) countHit(e Entry) {
	if e.Report == "" {
		c.metrics.IncCacheLookup("negative_hit")
		return
	}
	c.metrics.IncCacheLookup("hit")
}

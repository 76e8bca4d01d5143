package cache

import (
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Constants for expiring cache configuration
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second

	// allToken stands in for an absent date in generated keys
	allToken = "all"
	keyDate  = "2006-01-02"
)

// expiringEntry is a stored value with its lifetime
type expiringEntry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// expiredAt reports whether the entry is logically absent at now
func (e *expiringEntry) expiredAt(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats is a point-in-time view of cache counters
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Size   int   `json:"size"`
	// HitRate is hits / (hits + misses) as a percentage, 0 before any read
	HitRate float64 `json:"hit_rate"`
}

// EntryInfo describes one stored entry without exposing its value
type EntryInfo struct {
	Key          string        `json:"key"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	TTLRemaining time.Duration `json:"ttl_remaining"`
	Expired      bool          `json:"expired"`
}

// ExpiringCache is an in-memory key/value store with per-entry TTL.
// Expired entries are evicted lazily on read and by a background sweep.
// Every operation is safe for concurrent use and never fails.
type ExpiringCache struct {
	mu      sync.RWMutex
	entries map[string]*expiringEntry

	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64

	lifecycleMu sync.Mutex
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// ExpiringCacheOption is a functional option for configuring the cache
type ExpiringCacheOption func(*ExpiringCache)

// WithDefaultTTL sets the TTL used when Set is given a non-positive TTL
func WithDefaultTTL(ttl time.Duration) ExpiringCacheOption {
	return func(c *ExpiringCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithSweepInterval sets how often the background sweep runs
func WithSweepInterval(interval time.Duration) ExpiringCacheOption {
	return func(c *ExpiringCache) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// WithClock replaces time.Now, for tests that simulate time passing
func WithClock(now func() time.Time) ExpiringCacheOption {
	return func(c *ExpiringCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) ExpiringCacheOption {
	return func(c *ExpiringCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewExpiringCache creates an empty cache. Call Start to run the background sweep.
func NewExpiringCache(opts ...ExpiringCacheOption) *ExpiringCache {
	c := &ExpiringCache{
		entries:       make(map[string]*expiringEntry),
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Reads and writes
// ---------------------------------------------------------------------------

// Get returns the value stored under key if present and not expired.
// An expired entry is evicted and counted as a miss.
func (c *ExpiringCache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !e.expiredAt(now) {
		c.hits.Add(1)
		return e.value, true
	}
	if ok {
		c.evictIfSame(key, e)
	}
	c.misses.Add(1)
	return nil, false
}

// Has reports whether key holds an unexpired value. Counters are not touched.
func (c *ExpiringCache) Has(key string) bool {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && e.expiredAt(now) {
		c.evictIfSame(key, e)
		return false
	}
	return ok
}

// evictIfSame deletes key only if it still maps to e, so a concurrent Set is never lost
func (c *ExpiringCache) evictIfSame(key string, e *expiringEntry) {
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// Set stores value under key for ttl, replacing any existing entry.
// A non-positive ttl falls back to the default TTL.
func (c *ExpiringCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	e := &expiringEntry{value: value, createdAt: now, expiresAt: now.Add(ttl)}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	c.sets.Add(1)
}

// Delete removes key. Missing keys are ignored.
func (c *ExpiringCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry. Counters keep their values.
func (c *ExpiringCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*expiringEntry)
	c.mu.Unlock()
}

// ClearPattern removes every key containing substr and returns how many were removed
func (c *ExpiringCache) ClearPattern(substr string) int {
	return c.removeWhere(func(key string) bool {
		return strings.Contains(key, substr)
	})
}

// ClearNamespace removes every key whose first segment is ns and returns how
// many were removed. "orders" never matches "orders_archive:..." or "x:orders".
func (c *ExpiringCache) ClearNamespace(ns string) int {
	return c.removeWhere(func(key string) bool {
		return Namespace(key) == ns
	})
}

func (c *ExpiringCache) removeWhere(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// Stats returns cumulative counters since creation plus the current size
func (c *ExpiringCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Size:    size,
		HitRate: rate,
	}
}

// Info describes the entry under key, including one that expired but was not yet swept
func (c *ExpiringCache) Info(key string) (EntryInfo, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return EntryInfo{}, false
	}

	remaining := e.expiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return EntryInfo{
		Key:          key,
		CreatedAt:    e.createdAt,
		ExpiresAt:    e.expiresAt,
		TTLRemaining: remaining,
		Expired:      e.expiredAt(now),
	}, true
}

// ---------------------------------------------------------------------------
// Background sweep
// ---------------------------------------------------------------------------

// Start runs the background sweep. Calling Start on a running cache is a no-op.
func (c *ExpiringCache) Start() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.sweepLoop(c.stopCh)

	c.logger.Debug("Expiring cache sweep started", zap.Duration("interval", c.sweepInterval))
}

// Stop halts the background sweep and waits for it to exit. Safe to call multiple times.
func (c *ExpiringCache) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.running {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.running = false

	c.logger.Debug("Expiring cache sweep stopped")
}

func (c *ExpiringCache) sweepLoop(stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := c.PurgeExpired(); n > 0 {
				c.logger.Debug("Swept expired cache entries", zap.Int("removed", n))
			}
		}
	}
}

// PurgeExpired removes every expired entry and returns how many were removed
func (c *ExpiringCache) PurgeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// GenerateKey builds the deterministic key "<type>:<start|all>:<end|all>[:k=v&k=v]".
// Dates render at day granularity. Options are query-escaped and sorted by key,
// so a value holding '&' or '=' cannot collide with a different option set.
func GenerateKey(entityType string, start, end *time.Time, options map[string]string) string {
	var b strings.Builder
	b.WriteString(entityType)
	b.WriteByte(':')
	b.WriteString(renderDate(start))
	b.WriteByte(':')
	b.WriteString(renderDate(end))

	if len(options) > 0 {
		q := make(url.Values, len(options))
		for k, v := range options {
			q.Set(k, v)
		}
		b.WriteByte(':')
		b.WriteString(q.Encode())
	}
	return b.String()
}

// Namespace returns the first segment of a key
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func renderDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return allToken
	}
	return t.Format(keyDate)
}

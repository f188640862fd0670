package recur

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"sync"
	"time"
)

// CacheConfig holds tuning knobs for the expansion cache.
type CacheConfig struct {
	TTL             time.Duration // how long entries stay valid
	MaxEntries      int           // eviction threshold
	CleanupInterval time.Duration // how often expired entries are swept
}

// DefaultCacheConfig suits a calendar view that re-queries the same window
// while the user navigates.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

type cacheEntry struct {
	occs       []Occurrence
	expiresAt  time.Time
	accessedAt time.Time
}

// Cache memoizes Expand results keyed by (event, rule, window, cap). Safe
// for concurrent use. Expansion is pure, so entries only expire by TTL or
// eviction; there is no invalidation protocol.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewCache starts the background sweep goroutine; call Close to stop it.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	c := &Cache{
		entries:         make(map[string]*cacheEntry),
		ttl:             cfg.TTL,
		maxEntries:      cfg.MaxEntries,
		cleanupInterval: cfg.CleanupInterval,
		stop:            make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Expand is a memoized Expand. Results are shared between callers; treat
// them as read-only.
func (c *Cache) Expand(event Event, rule Rule, w Window, opts Options) ([]Occurrence, error) {
	key := cacheKey(event, rule, w, opts)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		c.mu.Lock()
		entry.accessedAt = time.Now()
		c.mu.Unlock()
		return entry.occs, nil
	}

	occs, err := Expand(event, rule, w, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	now := time.Now()
	c.entries[key] = &cacheEntry{occs: occs, expiresAt: now.Add(c.ttl), accessedAt: now}
	c.mu.Unlock()
	return occs, nil
}

// Query is Query backed by the memoized Expand, so repeated window queries
// over a stable event set hit the cache per event.
func (c *Cache) Query(ctx context.Context, events []Event, w Window, opts Options) ([]Occurrence, error) {
	return queryWith(ctx, events, w, opts, c.Expand)
}

// Len reports the number of live entries, expired ones included until the
// next sweep.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep goroutine. The cache remains usable afterwards.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.accessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cacheKey(event Event, rule Rule, w Window, opts Options) string {
	h := sha256.New()
	h.Write([]byte(event.ID))
	writeTime(h, event.Start)
	writeTime(h, event.End)
	writeTime(h, w.From)
	writeTime(h, w.To)
	_ = binary.Write(h, binary.LittleEndian, int64(opts.withDefaults().MaxOccurrences))
	// Params is the rule's canonical flat form; two equal rules hash equal.
	if raw, err := json.Marshal(ParamsOf(rule)); err == nil {
		h.Write(raw)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeTime(h hash.Hash, t time.Time) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	h.Write(buf[:])
}

// Package cache provides a TTL and size bounded key-value cache with
// pressure-aware partial eviction, shared across orchestration components.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"maestro/pkg/models"
)

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the entry count. Inserting past the bound
	// evicts least-recently-used entries.
	MaxEntries int
	// MaxBytes bounds the aggregate estimated size of values.
	MaxBytes int64
	// DefaultTTL applies when Put is called with a zero ttl.
	DefaultTTL time.Duration
	// SweepInterval is how often the background sweep purges expired
	// entries. Zero disables the sweep; expired entries are still
	// treated as absent on access.
	SweepInterval time.Duration
}

// entry is one cached value with its accounting metadata.
type entry struct {
	key        string
	value      any
	size       int64
	createdAt  time.Time
	ttl        time.Duration
	lastAccess time.Time
	elem       *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Stats is a read-only snapshot of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	SizeBytes  int64 `json:"size_bytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired"`
	MaxEntries int   `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`
}

// Cache is a mutex-serialized LRU cache with TTL expiry. A single lock
// covers all mutation so size accounting stays exact under concurrency.
type Cache struct {
	mu sync.Mutex

	entries map[string]*entry
	// lru orders entries most-recently-used first.
	lru *list.List

	maxEntries int
	maxBytes   int64
	size       int64

	// baseTTL is the configured default; defaultTTL is the effective
	// default, halved while critical pressure persists.
	baseTTL    time.Duration
	defaultTTL time.Duration

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// New creates a Cache and starts its background sweep if configured.
func New(opts Options) *Cache {
	c := &Cache{
		entries:       make(map[string]*entry),
		lru:           list.New(),
		maxEntries:    opts.MaxEntries,
		maxBytes:      opts.MaxBytes,
		baseTTL:       opts.DefaultTTL,
		defaultTTL:    opts.DefaultTTL,
		sweepInterval: opts.SweepInterval,
		stopSweep:     make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Get returns the cached value for key. Entries past their TTL are
// misses even if the sweep has not purged them yet.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := time.Now()
	if e.expired(now) {
		c.removeLocked(e)
		c.expired++
		c.misses++
		return nil, false
	}

	e.lastAccess = now
	c.lru.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

// Put stores value under key. A zero ttl uses the effective default.
// Inserting past the entry or byte bound evicts LRU entries first.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	size := estimateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	now := time.Now()
	e := &entry{
		key:        key,
		value:      value,
		size:       size,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.size += size

	c.enforceBoundsLocked()
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Len returns the current entry count, not counting physical purge lag
// of expired entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SizeBytes returns the current estimated aggregate size.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		SizeBytes:  c.size,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Expired:    c.expired,
		MaxEntries: c.maxEntries,
		MaxBytes:   c.maxBytes,
	}
}

// HandlePressure evicts part of the cache according to the pressure
// level. WARNING drops least-recently-used entries until half of the
// estimated bytes are freed; CRITICAL frees three quarters and halves
// the default TTL for new inserts until pressure clears (a NONE call
// restores it).
func (c *Cache) HandlePressure(level models.PressureLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch level {
	case models.PressureWarning:
		c.evictFractionLocked(0.50)
	case models.PressureCritical:
		c.evictFractionLocked(0.75)
		c.defaultTTL = c.baseTTL / 2
	case models.PressureNone:
		c.defaultTTL = c.baseTTL
	}
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.sweepOnce.Do(func() {
		close(c.stopSweep)
	})
}

// evictFractionLocked removes entries from the LRU end until the given
// fraction of the current estimated bytes has been freed. At least one
// entry goes, so pressure always frees something. Counting bytes
// rather than entries keeps the guarantee when sizes are uneven: one
// large recently-used entry cannot shield the cache from shrinking.
func (c *Cache) evictFractionLocked(fraction float64) {
	if len(c.entries) == 0 {
		return
	}

	target := int64(float64(c.size) * fraction)
	freed := int64(0)
	removed := 0
	for freed < target || removed == 0 {
		back := c.lru.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry)
		c.removeLocked(e)
		freed += e.size
		removed++
		c.evictions++
	}
}

// enforceBoundsLocked evicts LRU entries until both bounds hold.
func (c *Cache) enforceBoundsLocked() {
	for (c.maxEntries > 0 && len(c.entries) > c.maxEntries) ||
		(c.maxBytes > 0 && c.size > c.maxBytes) {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.removeLocked(back.Value.(*entry))
		c.evictions++
	}
}

// removeLocked detaches an entry and updates size accounting.
func (c *Cache) removeLocked(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.size -= e.size
}

// sweepLoop purges expired entries on a fixed interval, independent of
// access patterns.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes every expired entry now. Exposed for tests and for the
// pressure coordinator's diagnostics path.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			c.expired++
			removed++
		}
	}
	return removed
}

// estimateSize approximates the in-memory footprint of a value.
// Strings and byte slices use their length; everything else uses the
// length of its JSON encoding.
func estimateSize(value any) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return 64
		}
		return int64(len(data))
	}
}

package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/vjranagit/idealfit/pkg/types"
)

// TableCache implements an LRU cache of decoded tables
type TableCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
}

// cacheEntry represents a cached table
type cacheEntry struct {
	key       string
	table     *types.Table
	timestamp time.Time
	element   *list.Element
}

// NewTableCache creates a new table cache
func NewTableCache(capacity int, ttl time.Duration) *TableCache {
	return &TableCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a cached table. Callers receive a copy.
func (tc *TableCache) Get(name string) (*types.Table, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	entry, exists := tc.cache[name]
	if !exists {
		return nil, false
	}

	if tc.ttl > 0 && time.Since(entry.timestamp) > tc.ttl {
		tc.removeLocked(name)
		return nil, false
	}

	tc.lru.MoveToFront(entry.element)

	return entry.table.Clone(), true
}

// Put stores a copy of a table in the cache
func (tc *TableCache) Put(table *types.Table) {
	if tc.capacity <= 0 {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if entry, exists := tc.cache[table.Name]; exists {
		entry.table = table.Clone()
		entry.timestamp = time.Now()
		tc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       table.Name,
		table:     table.Clone(),
		timestamp: time.Now(),
	}
	entry.element = tc.lru.PushFront(entry)
	tc.cache[table.Name] = entry

	// Evict oldest entry if cache is full
	if tc.lru.Len() > tc.capacity {
		if oldest := tc.lru.Back(); oldest != nil {
			tc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

// Invalidate drops a single table from the cache
func (tc *TableCache) Invalidate(name string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.removeLocked(name)
}

// removeLocked removes an entry from the cache (must hold lock)
func (tc *TableCache) removeLocked(key string) {
	if entry, exists := tc.cache[key]; exists {
		tc.lru.Remove(entry.element)
		delete(tc.cache, key)
	}
}

// Clear clears all cache entries
func (tc *TableCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.cache = make(map[string]*cacheEntry)
	tc.lru = list.New()
}

// Size returns the current cache size
func (tc *TableCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

// Stats returns cache statistics
func (tc *TableCache) Stats() CacheStats {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	expired := 0
	for _, entry := range tc.cache {
		if tc.ttl > 0 && time.Since(entry.timestamp) > tc.ttl {
			expired++
		}
	}

	return CacheStats{
		Size:     len(tc.cache),
		Capacity: tc.capacity,
		Expired:  expired,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
}

// CachedStorage wraps a storage with a table cache
type CachedStorage struct {
	storage Storage
	cache   *TableCache
	hits    uint64
	misses  uint64
	// gens counts completed saves per table; a load only fills the
	// cache if no save finished while it was reading
	gens map[string]uint64
	mu   sync.Mutex
}

var _ Storage = (*CachedStorage)(nil)

// NewCachedStorage creates a cached storage wrapper
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration) *CachedStorage {
	return &CachedStorage{
		storage: storage,
		cache:   NewTableCache(cacheCapacity, cacheTTL),
		gens:    make(map[string]uint64),
	}
}

// SaveTable writes through, then replaces the cached copy
func (cs *CachedStorage) SaveTable(ctx context.Context, kind Kind, table *types.Table) error {
	if err := cs.storage.SaveTable(ctx, kind, table); err != nil {
		cs.cache.Invalidate(table.Name)
		return err
	}

	cs.mu.Lock()
	cs.gens[table.Name]++
	cs.cache.Put(table)
	cs.mu.Unlock()
	return nil
}

// LoadTable checks the cache before reading storage
func (cs *CachedStorage) LoadTable(ctx context.Context, name string) (*types.Table, error) {
	if table, ok := cs.cache.Get(name); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return table, nil
	}

	cs.mu.Lock()
	cs.misses++
	gen := cs.gens[name]
	cs.mu.Unlock()

	table, err := cs.storage.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	if cs.gens[name] == gen {
		cs.cache.Put(table)
	}
	cs.mu.Unlock()
	return table, nil
}

// SaveResults passes through to underlying storage
func (cs *CachedStorage) SaveResults(ctx context.Context, name string, results []types.PointResult) error {
	return cs.storage.SaveResults(ctx, name, results)
}

// LoadResults passes through to underlying storage
func (cs *CachedStorage) LoadResults(ctx context.Context, name string) ([]types.PointResult, error) {
	return cs.storage.LoadResults(ctx, name)
}

// Tables passes through to underlying storage
func (cs *CachedStorage) Tables(ctx context.Context, kind Kind) []TableInfo {
	return cs.storage.Tables(ctx, kind)
}

// Close closes the underlying storage
func (cs *CachedStorage) Close() error {
	cs.cache.Clear()
	return cs.storage.Close()
}

// CacheStats returns cache statistics with hit and miss counters
func (cs *CachedStorage) CacheStats() (CacheStats, uint64, uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cache.Stats(), cs.hits, cs.misses
}

// CacheHitRate returns the cache hit rate as a percentage
func (cs *CachedStorage) CacheHitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}

	return float64(cs.hits) / float64(total) * 100.0
}

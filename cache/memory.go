package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemorySessionStore implements SessionStore with an in-process TTL cache.
// Suitable for single-instance deployments and tests; the redis subpackage
// is the shared-cache backend.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, *SessionRecord]
}

// NewMemorySessionStore creates an in-memory session store with automatic
// expiry cleanup.
func NewMemorySessionStore() *MemorySessionStore {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *SessionRecord](DefaultSessionTTL),
		ttlcache.WithDisableTouchOnHit[string, *SessionRecord](),
	)

	go c.Start()

	return &MemorySessionStore{cache: c}
}

// Put implements SessionStore.Put.
func (s *MemorySessionStore) Put(_ context.Context, rec SessionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	copied := rec
	s.cache.Set(rec.UserID, &copied, ttl)
	return nil
}

// Get implements SessionStore.Get.
func (s *MemorySessionStore) Get(_ context.Context, userID string) (*SessionRecord, bool) {
	item := s.cache.Get(userID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete implements SessionStore.Delete.
func (s *MemorySessionStore) Delete(_ context.Context, userID string) error {
	s.cache.Delete(userID)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemorySessionStore) Close() error {
	s.cache.Stop()
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)

// MemorySyncCounter implements SyncCounter in process. Counter entries lapse
// two days after their last bump, matching the redis backend.
type MemorySyncCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	touched map[string]time.Time
}

// NewMemorySyncCounter creates an in-memory recovery counter.
func NewMemorySyncCounter() *MemorySyncCounter {
	return &MemorySyncCounter{
		counts:  map[string]int64{},
		touched: map[string]time.Time{},
	}
}

// Incr implements SyncCounter.Incr.
func (c *MemorySyncCounter) Incr(_ context.Context, day string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, at := range c.touched {
		if now.Sub(at) > 48*time.Hour {
			delete(c.counts, key)
			delete(c.touched, key)
		}
	}

	c.counts[day]++
	c.touched[day] = now
	return c.counts[day], nil
}

var _ SyncCounter = (*MemorySyncCounter)(nil)

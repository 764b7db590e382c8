// Package cache holds the read-through count cache used by the wishlist service.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Kerhoff/wishlist/internal/models"
)

// DefaultSize bounds the number of cached counts held by the LRU.
const DefaultSize = 10000

// Cache stores integer counts with a per-entry time to live.
type Cache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CountKey names the cached item count of one (owner, list) scope.
func CountKey(owner models.Owner, listID string) string {
	return fmt.Sprintf("wishlist:count:%s:%s", owner, listID)
}

type entry struct {
	value     int
	expiresAt time.Time
}

// LRU is a bounded in-process cache. Entries expire individually and are
// dropped lazily on read.
type LRU struct {
	store *lru.Cache[string, entry]
	now   func() time.Time
}

// NewLRU creates an LRU holding at most size entries.
// A non-positive size means DefaultSize.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultSize
	}
	store, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create count cache: %w", err)
	}
	return &LRU{store: store, now: time.Now}, nil
}

func (c *LRU) Get(_ context.Context, key string) (int, bool, error) {
	e, ok := c.store.Get(key)
	if !ok {
		return 0, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.store.Remove(key)
		return 0, false, nil
	}
	return e.value, true, nil
}

func (c *LRU) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.store.Add(key, e)
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.store.Remove(key)
	return nil
}

// Map is an unbounded cache that never expires entries and remembers the TTL
// each key was last stored with.
type Map struct {
	mu     sync.Mutex
	values map[string]int
	ttls   map[string]time.Duration
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{
		values: make(map[string]int),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *Map) Get(_ context.Context, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Map) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *Map) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	delete(m.ttls, key)
	return nil
}

// TTL returns the ttl the key was last stored with.
func (m *Map) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl, ok := m.ttls[key]
	return ttl, ok
}

// Package query caches read results under logical resource keys. Writers
// invalidate keys; the next read refetches. Nothing is pushed to readers.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Resource keys.
const (
	KeyServices                 = "services"
	KeyPortfolio                = "portfolio"
	KeyPortfolioCategories      = "portfolio-categories"
	KeyClients                  = "clients"
	KeyAdminClients             = "admin-clients"
	KeyAdminPortfolioProjects   = "admin-portfolio-projects"
	KeyAdminPortfolioCategories = "admin-portfolio-categories"
)

// ProjectImages is the key of one project's gallery.
func ProjectImages(projectID string) string { return "portfolio-images:" + projectID }

// Store holds encoded results.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Cache is a read-through cache with per-key request coalescing.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// New returns a cache over store. ttl 0 keeps entries until invalidated.
func New(store Store, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: store, ttl: ttl, log: log, gen: map[string]uint64{}}
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[key]
}

// Invalidate drops keys so the next read of each refetches. A load already in
// flight for an invalidated key does not repopulate it.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c.mu.Lock()
	for _, k := range keys {
		c.gen[k]++
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.group.Forget(k)
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}
	c.log.Debug("invalidated", zap.Strings("keys", keys))
	return nil
}

// Fetch returns the cached value under key, loading and storing it on a miss.
// Concurrent misses on one key share a single load.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, err, _ := c.group.Do(key, func() (any, error) {
		b, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.log.Warn("cache read", zap.String("key", key), zap.Error(err))
		} else if ok {
			return b, nil
		}

		gen := c.generation(key)
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		b, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if c.generation(key) == gen {
			if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
				c.log.Warn("cache write", zap.String("key", key), zap.Error(err))
			}
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw.([]byte), &out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

type entry struct {
	val     []byte
	expires time.Time
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]entry{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.m, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory. Values are stored JSON encoded
// so callers never share mutable state with the cache.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a memory store with the default TTL and cleanup interval
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	raw, found := s.c.Get(key)
	if !found {
		return ErrMiss
	}
	b, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("cache entry %s is a counter", key)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	s.c.Set(key, b, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Delete(k)
	}
	return nil
}

func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
	}
	for k := range s.c.Items() {
		if ok, _ := path.Match(pattern, k); ok {
			s.c.Delete(k)
		}
	}
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.c.Flush()
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := s.c.Add(key, int64(1), window); err == nil {
		return 1, window, nil
	}
	// Add and IncrementInt64 are separate critical sections; a counter that
	// expires in between is lost and the request is counted as the first hit.
	n, err := s.c.IncrementInt64(key, 1)
	if err != nil {
		if addErr := s.c.Add(key, int64(1), window); addErr != nil {
			return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
		}
		return 1, window, nil
	}
	_, exp, _ := s.c.GetWithExpiration(key)
	ttl := window
	if !exp.IsZero() {
		ttl = time.Until(exp)
	}
	return n, ttl, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

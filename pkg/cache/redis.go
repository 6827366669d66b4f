package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
)

type RedisConfig struct {
	URL          string
	Prefix       string
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
}

// RedisStore is the shared cache used when several API processes run.
// Calls go through a circuit breaker so an unavailable Redis degrades to
// cache misses instead of failing requests.
type RedisStore struct {
	client *redis.Client
	prefix string
	cb     *circuitbreaker.CircuitBreaker
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-cache",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}),
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := s.cb.Execute(func() error {
		var err error
		data, err = s.client.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return ErrMiss
	}
	if data == nil {
		return ErrMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.client.Del(ctx, s.key(key))
		return fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return s.cb.Execute(func() error {
		return s.client.Set(ctx, s.key(key), payload, ttl).Err()
	})
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.cb.Execute(func() error {
		return s.client.Del(ctx, full...).Err()
	})
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) error {
	return s.cb.Execute(func() error {
		iter := s.client.Scan(ctx, 0, s.key(pattern), 200).Iterator()
		batch := make([]string, 0, 200)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := s.client.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			return s.client.Del(ctx, batch...).Err()
		}
		return nil
	})
}

func (s *RedisStore) Flush(ctx context.Context) error {
	if s.prefix == "" {
		return s.cb.Execute(func() error {
			return s.client.FlushDB(ctx).Err()
		})
	}
	return s.DeletePattern(ctx, "*")
}

// Incr uses INCR followed by a conditional EXPIRE. The two commands are not
// atomic: a process dying between them leaves a counter without TTL, and
// concurrent first hits may each set the expiry.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		n   int64
		ttl time.Duration
	)
	err := s.cb.Execute(func() error {
		var err error
		n, err = s.client.Incr(ctx, s.key(key)).Result()
		if err != nil {
			return err
		}
		if n == 1 {
			if err := s.client.Expire(ctx, s.key(key), window).Err(); err != nil {
				return err
			}
			ttl = window
			return nil
		}
		ttl, err = s.client.TTL(ctx, s.key(key)).Result()
		if err != nil {
			return err
		}
		if ttl < 0 {
			ttl = window
			return s.client.Expire(ctx, s.key(key), window).Err()
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, ttl, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

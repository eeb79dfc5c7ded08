// Package cache provides read-through lookup caching over Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

// Store is the Redis surface the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// Lookup caches the results of one loader family under a key scope.
type Lookup[T any] struct {
	store  Store
	keyFn  func(id string) string
	ttl    time.Duration
	logger *logger.Logger
}

// NewLookup builds a cache for ids mapped through keyFn. A nil store disables
// caching and every call goes to the loader.
func NewLookup[T any](store Store, keyFn func(id string) string, ttl time.Duration, logg *logger.Logger) *Lookup[T] {
	return &Lookup[T]{store: store, keyFn: keyFn, ttl: ttl, logger: logg}
}

// GetOrLoad returns the cached value for id or calls load and caches its
// result. Entries are written with SETNX so the first writer within a TTL
// wins. Loader errors are never cached, and Redis failures fall through to
// the loader.
func (l *Lookup[T]) GetOrLoad(ctx context.Context, id string, load func(ctx context.Context) (T, error)) (T, error) {
	if l == nil || l.store == nil || l.ttl <= 0 {
		return load(ctx)
	}

	key := l.keyFn(id)
	raw, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		l.warn(ctx, key, "cache.decode_failed")
	case !errors.Is(err, redis.Nil):
		l.warn(ctx, key, "cache.read_failed")
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if _, err := l.store.SetNX(ctx, key, string(encoded), l.ttl); err != nil {
		l.warn(ctx, key, "cache.write_failed")
	}
	return value, nil
}

func (l *Lookup[T]) warn(ctx context.Context, key, msg string) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(l.logger.WithField(ctx, "cache_key", key), msg)
}

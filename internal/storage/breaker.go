package storage

import (
	"context"
	"time"

	"github.com/hyperjump/semcache/internal/resilience"
)

// BreakerStore runs every call of the wrapped store through a circuit breaker.
// Calls are never retried; an open circuit fails immediately.
type BreakerStore struct {
	next    RecordStore
	breaker *resilience.Breaker
}

// NewBreakerStore wraps next.
func NewBreakerStore(next RecordStore, breaker *resilience.Breaker) *BreakerStore {
	return &BreakerStore{next: next, breaker: breaker}
}

// HSet sets field in the hash at key.
func (s *BreakerStore) HSet(ctx context.Context, key, field, value string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.HSet(ctx, key, field, value)
	})
}

// HMGet returns one entry per field, nil where the field is absent.
func (s *BreakerStore) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	var out []*string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.HMGet(ctx, key, fields...)
		return err
	})
	return out, err
}

// HGetAll returns every field of the hash at key.
func (s *BreakerStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.HGetAll(ctx, key)
		return err
	})
	return out, err
}

// Del removes key.
func (s *BreakerStore) Del(ctx context.Context, key string) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Del(ctx, key)
	})
}

// Expire sets a time to live on key.
func (s *BreakerStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Expire(ctx, key, ttl)
	})
}

// Ping bypasses the breaker so health checks report the backend itself.
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// BreakerState returns the breaker state.
func (s *BreakerStore) BreakerState() string {
	return s.breaker.State()
}

// Close closes the wrapped store.
func (s *BreakerStore) Close() error {
	return s.next.Close()
}

// Package storage provides durable record stores for cached query records.
//
// A store maps a partition key to a hash of field -> serialized record, with
// key-level expiry. Redis is the primary backend; SQLite emulates the same
// hash semantics for single-node use without a Redis server.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/config"
	"github.com/hyperjump/semcache/internal/resilience"
)

// RecordStore is a hash-per-key store with key expiry.
type RecordStore interface {
	// HSet sets field in the hash at key.
	HSet(ctx context.Context, key, field, value string) error
	// HMGet returns one entry per field, nil where the field is absent.
	HMGet(ctx context.Context, key string, fields ...string) ([]*string, error)
	// HGetAll returns every field of the hash at key; empty when the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Del removes key and all its fields.
	Del(ctx context.Context, key string) error
	// Expire sets a time to live on key. A non-positive ttl deletes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// NewRecordStore opens the store selected by cfg.Type and puts a circuit breaker in front of it.
func NewRecordStore(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		store RecordStore
		err   error
	)
	switch cfg.Type {
	case "redis", "":
		store, err = NewRedisStore(ctx, cfg.URL, logger)
	case "sqlite":
		store, err = NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: redis, sqlite)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "store-" + cfg.Type,
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}, logger)
	return NewBreakerStore(store, breaker), nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/resilience"
)

// RedisStore implements RecordStore on Redis hashes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url (redis://[:password@]host:port/db).
// The first ping is retried with exponential backoff.
func NewRedisStore(ctx context.Context, url string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	attempt := 0
	err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			if logger != nil {
				logger.Debug("redis ping failed", zap.String("addr", opts.Addr), zap.Int("attempt", attempt), zap.Error(err))
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// HSet sets field in the hash at key.
func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

// HMGet returns one entry per field, nil where the field is absent.
func (s *RedisStore) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		switch val := v.(type) {
		case nil:
		case string:
			out[i] = &val
		default:
			return nil, fmt.Errorf("unexpected redis value type %T for field %s", v, fields[i])
		}
	}
	return out, nil
}

// HGetAll returns every field of the hash at key.
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

// Del removes key.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Expire sets a time to live on key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Del(ctx, key)
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

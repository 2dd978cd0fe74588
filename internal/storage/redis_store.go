package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records in Redis under a common prefix. It lets a fleet
// of headless clients (kiosks, test rigs) share one persistence backend.
type RedisStore struct {
	c      *redis.Client
	prefix string
}

// NewRedisStore opens a client for addr. The connection is established lazily.
func NewRedisStore(addr, pass string, db int, prefix string) *RedisStore {
	return &RedisStore{
		c:      redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		prefix: prefix,
	}
}

// Get returns the record stored under key or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

// Set replaces the record stored under key. Records never expire.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.c.Set(ctx, r.prefix+key, value, 0).Err()
}

// Ping checks that the backend is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.c.Close()
}

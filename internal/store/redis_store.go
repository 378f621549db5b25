package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore namespaces every key under prefix so several hosts can share
// one server.
func NewRedisStore(addr, prefix string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *RedisStore) key(kind, id string) string {
	return r.prefix + kind + ":" + id
}

func (r *RedisStore) SetSession(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key("session", key), value, ttl).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, r.key("session", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return result, err
}

func (r *RedisStore) DeleteSession(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key("session", key)).Err()
}

func (r *RedisStore) GetProcessed(ctx context.Context, reqID string) ([]byte, bool, error) {
	result, err := r.client.Get(ctx, r.key("processed", reqID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (r *RedisStore) MarkProcessed(ctx context.Context, reqID string, response []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key("processed", reqID), response, ttl).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

package session

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStorage stores values in redis under a shared key prefix.
type RedisStorage struct {
	c      *redis.Client
	prefix string
}

func NewRedisStorage(c *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{c: c, prefix: prefix}
}

func (r *RedisStorage) key(k string) string { return r.prefix + k }

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

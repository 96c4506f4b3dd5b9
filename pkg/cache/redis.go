package cache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the count in redis under prefix + CountKey.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + CountKey}
}

func (s *RedisStore) ReadCount(ctx context.Context) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) WriteCount(ctx context.Context, value string) error {
	return s.client.Set(ctx, s.key, value, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

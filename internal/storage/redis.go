package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/race-archive/internal/cache"
)

// RedisStore is the shared tier of the result cache, so several processes
// reuse each other's result lookups.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb, prefix: "racearchive:"}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// LoadResult reads a cached result entry. A missing key is not an error.
func (s *RedisStore) LoadResult(ctx context.Context, key string) (cache.Entry, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	var e cache.Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return e, true, nil
}

// SaveResult stores an entry, negative ones included, with the cache TTL.
func (s *RedisStore) SaveResult(ctx context.Context, key string, e cache.Entry, ttl time.Duration) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, val, ttl).Err()
}

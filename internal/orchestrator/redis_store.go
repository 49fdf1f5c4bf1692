package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strings"

	"live-orchestrator/internal/platform/cache"
)

// redisKV is the subset of cache.Redis used by RedisStore.
type redisKV interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, data []byte) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// RedisStore keeps each collection under one Redis key: prefix + collection.
type RedisStore struct {
	kv     redisKV
	prefix string
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(r *cache.Redis, prefix string) *RedisStore {
	return newRedisStore(r, prefix)
}

func newRedisStore(kv redisKV, prefix string) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix}
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, collection string) ([]byte, error) {
	b, err := s.kv.GetBytes(ctx, s.prefix+collection)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrRecordNotFound
	}
	return b, err
}

// Put implements Store.Put.
func (s *RedisStore) Put(ctx context.Context, collection string, data []byte) error {
	return s.kv.SetBytes(ctx, s.prefix+collection, data)
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, collection string) error {
	return s.kv.Del(ctx, s.prefix+collection)
}

// List implements Store.List.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, s.prefix+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(names)
	return names, nil
}

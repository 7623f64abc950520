package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	i_redis "cn-chinese-link/internal/db/redis"
	"cn-chinese-link/internal/domain/session/types"
)

// RedisStore 基于Redis的会话存储，多实例共享
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore 使用全局Redis客户端，config支持key_prefix
func NewRedisStore(config map[string]interface{}) (*RedisStore, error) {
	client := i_redis.GetClient()
	if client == nil {
		return nil, errors.New("redis客户端未初始化")
	}
	return NewRedisStoreWithClient(client, cast.ToString(config["key_prefix"])), nil
}

func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(k string) string {
	return i_redis.GetKeyWithPrefix(s.keyPrefix, "session:"+k)
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close 客户端是全局共享的，由i_redis.Close统一关闭
func (s *RedisStore) Close() error {
	return nil
}

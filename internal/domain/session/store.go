package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cn-chinese-link/constants"
	"cn-chinese-link/internal/domain/session/memory"
	sessionredis "cn-chinese-link/internal/domain/session/redis"
	"cn-chinese-link/internal/domain/session/types"
)

var ErrNotFound = types.ErrNotFound

// Store 带过期时间的键值存储，保存登录令牌、进行中的对话和语音缓存
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetStore 按类型创建存储，"memory" 或 "redis"
func GetStore(storeType string, config map[string]interface{}) (Store, error) {
	if config == nil {
		config = make(map[string]interface{})
	}
	switch storeType {
	case constants.SessionStoreMemory, "":
		return memory.NewMemoryStore(config), nil
	case constants.SessionStoreRedis:
		store, err := sessionredis.NewRedisStore(config)
		if err != nil {
			return nil, fmt.Errorf("创建Redis会话存储失败: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("不支持的会话存储: %s", storeType)
	}
}

// SetJSON 以JSON保存
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// GetJSON 读取并反序列化，不存在时返回ErrNotFound
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

package memory

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/spf13/cast"

	"cn-chinese-link/internal/domain/session/types"
	log "cn-chinese-link/logger"
)

type entry struct {
	data     []byte
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryStore 进程内存储，重启后数据丢失，适合单实例部署和测试
type MemoryStore struct {
	items      cmap.ConcurrentMap[string, entry]
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore config支持max_entries，0表示不限制
func NewMemoryStore(config map[string]interface{}) *MemoryStore {
	s := &MemoryStore{
		items:      cmap.New[entry](),
		maxEntries: cast.ToInt(config["max_entries"]),
		now:        time.Now,
	}
	log.Log("max_entries", s.maxEntries).Info("内存会话存储初始化成功")
	return s
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.maxEntries > 0 && !s.items.Has(key) && s.items.Count() >= s.maxEntries {
		s.Cleanup()
		if s.items.Count() >= s.maxEntries {
			return types.ErrFull
		}
	}
	e := entry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.items.Set(key, e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, ok := s.items.Get(key)
	if !ok {
		return nil, types.ErrNotFound
	}
	if now := s.now(); e.expired(now) {
		s.removeExpired(key, now)
		return nil, types.ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.items.Remove(key)
	return nil
}

// Cleanup 清理过期条目
func (s *MemoryStore) Cleanup() int {
	now := s.now()
	removed := 0
	for _, key := range s.items.Keys() {
		if s.removeExpired(key, now) {
			removed++
		}
	}
	return removed
}

// removeExpired 加锁后重新判断过期，期间被重新写入的条目保留
func (s *MemoryStore) removeExpired(key string, now time.Time) bool {
	return s.items.RemoveCb(key, func(k string, e entry, exists bool) bool {
		return exists && e.expired(now)
	})
}

// RunJanitor 定期清理，ctx取消后退出
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				log.Debugf("清理过期会话 %d 条", n)
			}
		}
	}
}

func (s *MemoryStore) Len() int {
	return s.items.Count()
}

func (s *MemoryStore) Close() error {
	s.items.Clear()
	return nil
}

package chat

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type convLock struct {
	mu   sync.Mutex
	refs int
}

// lockRegistry 按对话ID串行化修改，没有人持有时移除
type lockRegistry struct {
	locks cmap.ConcurrentMap[string, *convLock]
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: cmap.New[*convLock]()}
}

// acquire 加锁，返回解锁函数
func (r *lockRegistry) acquire(id string) func() {
	l := r.locks.Upsert(id, nil, func(exist bool, inMap, _ *convLock) *convLock {
		if !exist {
			inMap = &convLock{}
		}
		inMap.refs++
		return inMap
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locks.RemoveCb(id, func(_ string, v *convLock, exists bool) bool {
			if !exists {
				return false
			}
			v.refs--
			return v.refs <= 0
		})
	}
}

func (r *lockRegistry) count() int {
	return r.locks.Count()
}

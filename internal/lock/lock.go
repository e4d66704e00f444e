// Package lock 提供按车辆划分的互斥，保证同一车辆的「修改 + 重算」串行执行，
// 不同车辆之间互不阻塞。
package lock

import (
	"context"
	"sync"
)

// Unlock 释放锁
type Unlock func()

// Locker 按车辆加锁
type Locker interface {
	Lock(ctx context.Context, vehicleID int64) (Unlock, error)
}

type entry struct {
	ch   chan struct{} // 容量为 1，持有即加锁
	refs int
}

// KeyedMutex 进程内的车辆锁
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewKeyedMutex 创建进程内车辆锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[int64]*entry),
	}
}

// Lock 获取车辆锁，ctx 结束时放弃等待
func (m *KeyedMutex) Lock(ctx context.Context, vehicleID int64) (Unlock, error) {
	m.mu.Lock()
	e, ok := m.entries[vehicleID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[vehicleID] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(vehicleID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(vehicleID, e)
		})
	}, nil
}

func (m *KeyedMutex) release(vehicleID int64, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, vehicleID)
	}
}

// Len 当前被持有或等待中的车辆数
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Package lock serializes work on a single entity while letting unrelated
// entities proceed in parallel.
package lock

import (
	"context"
	"sync"

	"github.com/gxp-audit/gxa/pkg/model"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Manager hands out per-entity locks keyed by entity type and id. Idle keys
// are dropped so the table only holds entities with waiters or holders.
type Manager struct {
	mu    sync.Mutex
	locks map[model.EntityKey]*entry
}

// NewManager creates a new lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[model.EntityKey]*entry)}
}

// Acquire blocks until the lock for key is held or ctx is done. The returned
// release function must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, key model.EntityKey) (func(), error) {
	// A done ctx never wins the lock, even when the lock is free.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.drop(key, e)
		})
	}, nil
}

func (m *Manager) drop(key model.EntityKey, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Held returns the number of keys currently tracked.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Package lock serializes work per key, in process or across processes.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned by an Unlock whose lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive locks by key. Lock blocks until the lock is
// acquired or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Memory is an in-process Locker. Keys are forgotten once no goroutine holds
// or waits for them.
type Memory struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewMemory returns an in-process locker.
func NewMemory() *Memory {
	return &Memory{keys: map[string]*entry{}}
}

// Lock implements Locker.
func (m *Memory) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	e, ok := m.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.keys[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			<-e.ch
			m.release(key, e)
			err = nil
		})
		return err
	}, nil
}

func (m *Memory) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.keys, key)
	}
}

// held reports how many keys are tracked.
func (m *Memory) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

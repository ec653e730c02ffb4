package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is implemented by Redis and Memory.
type Store[T any] interface {
	Put(ctx context.Context, id string, v *T, ttl time.Duration) error
	Get(ctx context.Context, id string) (*T, error)
	Take(ctx context.Context, id string) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
	// Update rewrites a present record atomically and keeps its expiry.
	// mutate returns the replacement, or nil to remove the record. It may
	// run more than once. An absent id gives ErrNotFound.
	Update(ctx context.Context, id string, mutate func(v *T) *T) error
}

var (
	_ Store[struct{}] = (*Redis[struct{}])(nil)
	_ Store[struct{}] = (*Memory[struct{}])(nil)
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is a process local Store. Values are stored encoded so callers
// never share memory with the store.
type Memory[T any] struct {
	mu      sync.Mutex
	entries map[string]entry
	nowTime func() time.Time
}

func NewMemory[T any](nowTime func() time.Time) *Memory[T] {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Memory[T]{entries: map[string]entry{}, nowTime: nowTime}
}

func (m *Memory[T]) Put(_ context.Context, id string, v *T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", id, err)
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = m.nowTime().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = e
	return nil
}

func (m *Memory[T]) Get(_ context.Context, id string) (*T, error) {
	m.mu.Lock()
	e, ok := m.live(id)
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode[T](e.data)
}

func (m *Memory[T]) Take(_ context.Context, id string) (*T, error) {
	m.mu.Lock()
	e, ok := m.live(id)
	delete(m.entries, id)
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode[T](e.data)
}

func (m *Memory[T]) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(id)
	delete(m.entries, id)
	return ok, nil
}

func (m *Memory[T]) Update(_ context.Context, id string, mutate func(v *T) *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return ErrNotFound
	}
	v, err := decode[T](e.data)
	if err != nil {
		return err
	}
	next := mutate(v)
	if next == nil {
		delete(m.entries, id)
		return nil
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", id, err)
	}
	m.entries[id] = entry{data: data, expiresAt: e.expiresAt}
	return nil
}

// PurgeExpired drops expired entries and returns how many were removed.
func (m *Memory[T]) PurgeExpired() int {
	now := m.nowTime()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// live must be called with mu held.
func (m *Memory[T]) live(id string) (entry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.nowTime().Before(e.expiresAt) {
		delete(m.entries, id)
		return entry{}, false
	}
	return e, true
}

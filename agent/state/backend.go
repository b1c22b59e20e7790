package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("store key is empty")
)

const defaultStoreTTL = 72 * time.Hour

// Backend is the key-value contract the history and cart stores are built on.
// Writes refresh the key's TTL when the backend has one.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Append(ctx context.Context, key string, values ...[]byte) error
	Range(ctx context.Context, key string) ([][]byte, error)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

type memoryEntry struct {
	value     []byte
	list      [][]byte
	expiresAt time.Time
}

// MemoryBackend keeps keys in process memory with TTL eviction.
// Intended for local development and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl < 0 {
		ttl = defaultStoreTTL
	}
	return &MemoryBackend{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || e.value == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	m.entries[key] = &memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.expiry(),
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Append(_ context.Context, key string, values ...[]byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	e := m.live(key)
	if e == nil {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	for _, v := range values {
		e.list = append(e.list, append([]byte(nil), v...))
	}
	e.expiresAt = m.expiry()
	return nil
}

func (m *MemoryBackend) Range(_ context.Context, key string) ([][]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return nil, nil
	}
	out := make([][]byte, len(e.list))
	for i, v := range e.list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (m *MemoryBackend) live(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryBackend) sweep() {
	now := m.now()
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

func (m *MemoryBackend) expiry() time.Time {
	if m.ttl == 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Backend хранилище состояния вёдер.
// Reserve атомарно по ключу: два конкурентных запроса не могут оба увидеть устаревший остаток.
type Backend interface {
	// Reserve списывает n токенов и возвращает время ожидания до их доступности
	Reserve(ctx context.Context, key string, cfg Config, n int64) (time.Duration, error)
	// Cancel возвращает ранее зарезервированные токены
	Cancel(ctx context.Context, key string, cfg Config, n int64) error
}

// MemoryBackend вёдра в памяти процесса
type MemoryBackend struct {
	buckets map[string]*TokenBucket
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryBackend создаёт backend в памяти
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}
}

// withBucket выполняет fn над ведром ключа под блокировкой карты.
// Prune не удаляет ведро, пока над ним идёт операция.
func (m *MemoryBackend) withBucket(key string, cfg Config, fn func(*TokenBucket)) {
	m.mu.RLock()
	if b, ok := m.buckets[key]; ok {
		fn(b)
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[key]
	if !ok {
		b = newTokenBucket(cfg, m.now)
		m.buckets[key] = b
	}
	fn(b)
}

// Reserve реализует Backend
func (m *MemoryBackend) Reserve(_ context.Context, key string, cfg Config, n int64) (wait time.Duration, err error) {
	m.withBucket(key, cfg, func(b *TokenBucket) {
		wait, err = b.reserve(n)
	})
	return wait, err
}

// Cancel реализует Backend
func (m *MemoryBackend) Cancel(_ context.Context, key string, cfg Config, n int64) error {
	m.withBucket(key, cfg, func(b *TokenBucket) { b.cancel(n) })
	return nil
}

// Prune удаляет полные вёдра, не использовавшиеся дольше своего интервала.
// Возвращает количество удалённых.
func (m *MemoryBackend) Prune() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		if b.idle(now) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len количество живых вёдер
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

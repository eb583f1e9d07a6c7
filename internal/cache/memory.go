package cache

import (
	"context"
	"sync"
	"time"

	"github.com/thinh267/stat-arb/internal/models"
)

type memoryEntry struct {
	candles []models.Candle
	expires time.Time // нулевое = без срока
}

// MemoryCache - потокобезопасный кэш в памяти процесса.
// Сканер создаёт новый экземпляр на каждый прогон. Долгоживущий кэш с
// ttl > 0 сам удаляет устаревшие записи: при чтении и не чаще раза в ttl
// при записи.
type MemoryCache struct {
	mu        sync.RWMutex
	items     map[string]memoryEntry
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryCache создаёт кэш; ttl <= 0 - записи не устаревают
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get возвращает серию, если она есть и не устарела
func (m *MemoryCache) Get(ctx context.Context, key string) ([]models.Candle, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if m.expired(e) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && m.expired(cur) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.candles, true
}

// SetIfAbsent сохраняет серию, если ключ свободен или устарел
func (m *MemoryCache) SetIfAbsent(ctx context.Context, key string, candles []models.Candle) ([]models.Candle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[key]; ok && !m.expired(e) {
		return e.candles, false
	}
	m.sweepLocked()

	e := memoryEntry{candles: candles}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.items[key] = e
	return candles, true
}

// Len возвращает число записей, включая устаревшие
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// sweepLocked удаляет устаревшие записи, если с прошлого прохода прошло
// не меньше ttl. Вызывается под m.mu.
func (m *MemoryCache) sweepLocked() {
	if m.ttl <= 0 {
		return
	}
	now := m.now()
	if now.Sub(m.lastSweep) < m.ttl {
		return
	}
	m.lastSweep = now
	for k, e := range m.items {
		if m.expired(e) {
			delete(m.items, k)
		}
	}
}

func (m *MemoryCache) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && m.now().After(e.expires)
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// MemoryOption 内存缓存选项.
type MemoryOption func(*memoryCache)

// WithClock 设置时钟.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memoryCache) {
		if now != nil {
			m.now = now
		}
	}
}

type entry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// memoryCache 进程内缓存，后台协程按 CleanupInterval 清理过期项.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	prefix  string
	maxSize int
	now     func() time.Time
	log     logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache 创建内存缓存，cfg 为 nil 时使用默认配置.
func NewMemoryCache(cfg *Config, log logger.Logger, opts ...MemoryOption) (Cache, error) {
	if log == nil {
		return nil, ErrNilLogger
	}
	if cfg == nil {
		cfg = &Config{Type: TypeMemory}
	}
	cfg.ApplyDefaults()

	m := &memoryCache{
		entries: make(map[string]entry),
		prefix:  cfg.KeyPrefix,
		maxSize: cfg.MaxSize,
		now:     time.Now,
		log:     log,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor(cfg.CleanupInterval)
	return m, nil
}

func (m *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.removeExpired(); n > 0 {
				m.log.With(logger.Int("removed", n)).Debug("[Cache] 清理过期项")
			}
		case <-m.stop:
			return
		}
	}
}

func (m *memoryCache) removeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Set 实现 Cache.
//
// 新键使条目数达到 MaxSize 时淘汰最早过期的一项，不过期的项最后淘汰.
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	e := entry{value: data}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}

	k := m.prefix + key
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; !ok && len(m.entries) >= m.maxSize {
		m.evict()
	}
	m.entries[k] = e
	return nil
}

// evict 调用方需持有写锁.
func (m *memoryCache) evict() {
	var (
		victim string
		at     time.Time
		found  bool
	)
	for k, e := range m.entries {
		if e.expireAt.IsZero() {
			if !found {
				victim, found = k, true
			}
			continue
		}
		if !found || at.IsZero() || e.expireAt.Before(at) {
			victim, at, found = k, e.expireAt, true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}

func (m *memoryCache) lookup(key string) (entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[m.prefix+key]
	m.mu.RUnlock()
	if !ok || e.expired(m.now()) {
		return entry{}, false
	}
	return e, true
}

// Get 实现 Cache.
func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	e, ok := m.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

// Exists 实现 Cache.
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.lookup(key)
	return ok, nil
}

// TTL 实现 Cache.
func (m *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	e, ok := m.lookup(key)
	switch {
	case !ok:
		return KeyMissing, nil
	case e.expireAt.IsZero():
		return NoExpiry, nil
	}
	return e.expireAt.Sub(m.now()), nil
}

// Ping 实现 Cache.
func (m *memoryCache) Ping(context.Context) error {
	return nil
}

// Close 停止清理协程，可重复调用.
func (m *memoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *memoryCache) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

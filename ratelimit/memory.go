package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

type windowEntry struct {
	start time.Time
	count int
}

type suspiciousEntry struct {
	firstSeen  time.Time
	requests   int
	userAgents map[string]struct{}
	paths      map[string]struct{}
}

// MemoryLedger 进程内台账，所有状态由互斥锁保护.
type MemoryLedger struct {
	mu         sync.Mutex
	windows    map[string]*windowEntry
	suspicious map[string]*suspiciousEntry
	blocked    map[string]time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger 创建进程内台账.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		windows:    make(map[string]*windowEntry),
		suspicious: make(map[string]*suspiciousEntry),
		blocked:    make(map[string]time.Time),
	}
}

// Blocked 实现 Ledger.
func (l *MemoryLedger) Blocked(_ context.Context, ip string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.blocked[ip]
	if !ok {
		return false, nil
	}
	if !now.Before(until) {
		delete(l.blocked, ip)
		delete(l.suspicious, ip)
		return false, nil
	}
	return true, nil
}

// Block 实现 Ledger.
func (l *MemoryLedger) Block(_ context.Context, ip string, until time.Time) error {
	l.mu.Lock()
	l.blocked[ip] = until
	l.mu.Unlock()
	return nil
}

// Count 实现 Ledger.
func (l *MemoryLedger) Count(_ context.Context, ip string, windowStart time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.windows[WindowKey(ip, windowStart)]; ok {
		return e.count, nil
	}
	return 0, nil
}

// Increment 实现 Ledger.
func (l *MemoryLedger) Increment(_ context.Context, ip string, windowStart time.Time, _ time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := WindowKey(ip, windowStart)
	e, ok := l.windows[key]
	if !ok {
		e = &windowEntry{start: windowStart}
		l.windows[key] = e
	}
	e.count++
	return e.count, nil
}

// Decrement 实现 Ledger.
func (l *MemoryLedger) Decrement(_ context.Context, ip string, windowStart time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := WindowKey(ip, windowStart)
	e, ok := l.windows[key]
	if !ok {
		return nil
	}
	if e.count--; e.count <= 0 {
		delete(l.windows, key)
	}
	return nil
}

// Suspicious 实现 Ledger.
func (l *MemoryLedger) Suspicious(_ context.Context, ip string) (*Suspicious, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.suspicious[ip]; ok {
		return e.snapshot(), nil
	}
	return nil, nil
}

// MarkSuspicious 实现 Ledger.
func (l *MemoryLedger) MarkSuspicious(_ context.Context, ip, userAgent, path string, now time.Time) (*Suspicious, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.suspicious[ip]
	if !ok {
		e = newSuspiciousEntry(now)
		l.suspicious[ip] = e
	}
	e.requests++
	e.userAgents[userAgent] = struct{}{}
	e.paths[path] = struct{}{}
	return e.snapshot(), nil
}

// Track 实现 Ledger.
func (l *MemoryLedger) Track(_ context.Context, ip string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.suspicious[ip]; !ok {
		l.suspicious[ip] = newSuspiciousEntry(now)
	}
	return nil
}

// Sweep 实现 Ledger.
func (l *MemoryLedger) Sweep(_ context.Context, now time.Time, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	windowCutoff := now.Add(-window)
	for key, e := range l.windows {
		if e.start.Before(windowCutoff) {
			delete(l.windows, key)
			removed++
		}
	}

	suspiciousCutoff := now.Add(-SuspiciousTTL)
	for ip, e := range l.suspicious {
		if e.firstSeen.Before(suspiciousCutoff) {
			delete(l.suspicious, ip)
			removed++
		}
	}

	for ip, until := range l.blocked {
		if !now.Before(until) {
			delete(l.blocked, ip)
			delete(l.suspicious, ip)
			removed++
		}
	}
	return removed, nil
}

// Len 返回窗口、可疑记录与封禁条数.
func (l *MemoryLedger) Len() (windows, suspicious, blocked int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows), len(l.suspicious), len(l.blocked)
}

func newSuspiciousEntry(now time.Time) *suspiciousEntry {
	return &suspiciousEntry{
		firstSeen:  now,
		userAgents: make(map[string]struct{}),
		paths:      make(map[string]struct{}),
	}
}

func (e *suspiciousEntry) snapshot() *Suspicious {
	return &Suspicious{
		FirstSeen:  e.firstSeen,
		Requests:   e.requests,
		UserAgents: sortedKeys(e.userAgents),
		Paths:      sortedKeys(e.paths),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package rbac

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 权限决策缓存默认值.
const (
	DefaultDecisionTTL = 5 * time.Minute
	DefaultMaxEntries  = 1000
)

// decisionEntry 权限决策缓存项.
type decisionEntry struct {
	result bool
	at     time.Time
}

// decisionCache 进程内权限决策缓存.
//
// 插入使条目数超过 max 时先清理过期项，仍超过则按时间从旧到新淘汰，直到回到 max.
type decisionCache struct {
	mu      sync.Mutex
	entries map[string]decisionEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newDecisionCache(ttl time.Duration, max int, now func() time.Time) *decisionCache {
	return &decisionCache{
		entries: make(map[string]decisionEntry),
		ttl:     ttl,
		max:     max,
		now:     now,
	}
}

// decisionKey 由排序后的角色名与权限构成，角色顺序不影响命中.
func decisionKey(roles []string, perm string) string {
	return roleSetKey(roles) + "|" + perm
}

// roleSetKey 排序后逐个写成 "<长度>:<角色名>"，角色名含分隔符时也不会与其他集合冲突.
func roleSetKey(roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)

	var b strings.Builder
	for i, r := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(len(r)))
		b.WriteByte(':')
		b.WriteString(r)
	}
	return b.String()
}

// get 返回 TTL 内的缓存结果.
func (c *decisionCache) get(key string) (result, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || c.now().Sub(e.at) >= c.ttl {
		return false, false
	}
	return e.result, true
}

// put 写入或覆盖缓存项.
func (c *decisionCache) put(key string, result bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = decisionEntry{result: result, at: c.now()}
	if len(c.entries) > c.max {
		c.clean()
	}
}

// clean 调用方需持有锁.
func (c *decisionCache) clean() {
	c.removeExpired()
	if len(c.entries) <= c.max {
		return
	}

	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	for _, a := range all[:len(all)-c.max] {
		delete(c.entries, a.key)
	}
}

// removeExpired 调用方需持有锁.
func (c *decisionCache) removeExpired() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// sweep 清理过期项，返回清理数量.
func (c *decisionCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpired()
}

// clear 清空缓存，返回清理前的条目数.
func (c *decisionCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]decisionEntry)
	return n
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

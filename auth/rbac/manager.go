// Package rbac 实现基于角色等级与权限字符串的访问控制.
//
// 角色按 Level 全序排列，高等级角色通过 Extends 继承低等级角色的全部权限.
// 权限字符串为 "<category>.<action>"，"<category>.*" 授予该类别的全部动作，"*" 授予全部权限.
//
//	m := rbac.New(rbac.WithLogger(log))
//	if m.HasPermission(roles, rbac.PermBusinessUpdate) {
//	    // ...
//	}
//
// Manager 的所有公开方法都不会 panic：内部异常被记录后返回拒绝值.
package rbac

import (
	"strings"
	"sync/atomic"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// Stats 决策缓存统计.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evaluations int64 `json:"evaluations"`
	Entries     int   `json:"entries"`
}

// Manager 角色管理器.
type Manager struct {
	opts      *options
	registry  *Registry
	decisions *decisionCache
	log       logger.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	evaluations atomic.Int64
}

// New 创建角色管理器.
func New(opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}

	return &Manager{
		opts:      o,
		registry:  o.registry,
		decisions: newDecisionCache(o.decisionTTL, o.maxEntries, o.now),
		log:       o.logger.With(logger.String("component", "rbac")),
	}
}

// Registry 返回角色注册表.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// recoverTo 恢复内部 panic 并通过 deny 写回拒绝值.
func (m *Manager) recoverTo(op string, deny func()) {
	if r := recover(); r != nil {
		m.log.With(
			logger.String("op", op),
			logger.Any("panic", r),
		).Error("[RBAC] 权限计算异常，按拒绝处理")
		deny()
	}
}

// HasPermission 检查角色集合是否拥有权限.
//
// 角色集合为空时直接返回 false，不查缓存.
func (m *Manager) HasPermission(roles []string, perm string) (granted bool) {
	defer m.recoverTo("HasPermission", func() { granted = false })

	if len(roles) == 0 {
		return false
	}

	key := decisionKey(roles, perm)
	if result, ok := m.decisions.get(key); ok {
		m.hits.Add(1)
		m.observe(true)
		return result
	}
	m.misses.Add(1)
	m.observe(false)

	m.evaluations.Add(1)
	granted = m.evaluate(roles, perm)

	m.decisions.put(key, granted)
	m.log.With(
		logger.String("key", key),
		logger.Bool("granted", granted),
	).Debug("[RBAC] 权限决策已缓存")
	return granted
}

func (m *Manager) observe(hit bool) {
	if m.opts.metrics != nil {
		m.opts.metrics.DecisionCacheLookup(hit)
	}
}

// evaluate 基于角色表计算权限，不经过缓存.
func (m *Manager) evaluate(roles []string, perm string) bool {
	if top := m.highest(roles); top != nil && top.Name == RoleSuperAdmin {
		return true
	}

	category := perm
	if idx := strings.Index(perm, "."); idx >= 0 {
		category = perm[:idx]
	}
	categoryWildcard := category + ".*"

	for _, name := range roles {
		role := m.registry.lookup(name)
		if role == nil {
			continue
		}
		if role.has(PermAll) || role.has(perm) || role.has(categoryWildcard) {
			return true
		}
	}
	return false
}

// HasAnyPermission 拥有任一权限即返回 true.
func (m *Manager) HasAnyPermission(roles, perms []string) (granted bool) {
	defer m.recoverTo("HasAnyPermission", func() { granted = false })

	for _, p := range perms {
		if m.HasPermission(roles, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions 拥有全部权限才返回 true.
func (m *Manager) HasAllPermissions(roles, perms []string) (granted bool) {
	defer m.recoverTo("HasAllPermissions", func() { granted = false })

	for _, p := range perms {
		if !m.HasPermission(roles, p) {
			return false
		}
	}
	return true
}

// HasRole 检查角色名是否在列表中，大小写敏感.
func (m *Manager) HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole 拥有任一角色即返回 true.
func (m *Manager) HasAnyRole(roles, names []string) bool {
	for _, n := range names {
		if m.HasRole(roles, n) {
			return true
		}
	}
	return false
}

// highest 返回已知角色中等级最高者，均未定义时返回 nil.
func (m *Manager) highest(roles []string) *resolvedRole {
	var top *resolvedRole
	for _, name := range roles {
		role := m.registry.lookup(name)
		if role == nil {
			continue
		}
		if top == nil || role.Level > top.Level {
			top = role
		}
	}
	return top
}

// HighestRole 返回等级最高的已知角色名.
func (m *Manager) HighestRole(roles []string) (name string, ok bool) {
	defer m.recoverTo("HighestRole", func() { name, ok = "", false })

	if top := m.highest(roles); top != nil {
		return top.Name, true
	}
	return "", false
}

// HighestRoleLevel 返回最高角色等级，无已知角色时返回 0.
func (m *Manager) HighestRoleLevel(roles []string) (level int) {
	defer m.recoverTo("HighestRoleLevel", func() { level = 0 })

	if top := m.highest(roles); top != nil {
		return top.Level
	}
	return 0
}

// Role 按名称查找角色.
func (m *Manager) Role(name string) (*Role, bool) {
	return m.registry.Role(name)
}

// AllPermissions 返回各角色原始权限的去重并集，通配权限原样保留.
func (m *Manager) AllPermissions(roles []string) (perms []string) {
	defer m.recoverTo("AllPermissions", func() { perms = []string{} })

	perms = []string{}
	seen := make(map[string]struct{})
	for _, name := range roles {
		role := m.registry.lookup(name)
		if role == nil {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms
}

// CanAccessResource 检查 "<resource>.<action>" 权限，action 为空时视为 read.
func (m *Manager) CanAccessResource(roles []string, resource, action string) bool {
	if action == "" {
		action = "read"
	}
	return m.HasPermission(roles, resource+"."+action)
}

// CanAssignRole 分配方最高等级不低于目标角色等级时允许分配.
func (m *Manager) CanAssignRole(assigner []string, target string) (ok bool) {
	defer m.recoverTo("CanAssignRole", func() { ok = false })

	role := m.registry.lookup(target)
	if role == nil {
		return false
	}
	return m.HighestRoleLevel(assigner) >= role.Level
}

// CanManageRole 管理方最高等级严格高于目标角色等级时允许管理.
func (m *Manager) CanManageRole(manager []string, target string) (ok bool) {
	defer m.recoverTo("CanManageRole", func() { ok = false })

	role := m.registry.lookup(target)
	if role == nil {
		return false
	}
	return m.HighestRoleLevel(manager) > role.Level
}

// AvailableActions 返回资源类型上被授予的动作，顺序同 ResourceActions.
func (m *Manager) AvailableActions(roles []string, resourceType string) (actions []string) {
	defer m.recoverTo("AvailableActions", func() { actions = []string{} })

	actions = []string{}
	for _, a := range ResourceActions {
		if m.HasPermission(roles, resourceType+"."+a) {
			actions = append(actions, a)
		}
	}
	return actions
}

// ClearPermissionCache 清空权限决策缓存.
func (m *Manager) ClearPermissionCache() {
	n := m.decisions.clear()
	m.log.With(logger.Int("entries", n)).Debug("[RBAC] 权限决策缓存已清空")
}

// SweepDecisions 清理过期的权限决策，返回清理数量.
func (m *Manager) SweepDecisions() int {
	n := m.decisions.sweep()
	if n > 0 {
		m.log.With(logger.Int("removed", n)).Debug("[RBAC] 过期权限决策已清理")
	}
	return n
}

// Stats 返回决策缓存统计.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Evaluations: m.evaluations.Load(),
		Entries:     m.decisions.len(),
	}
}

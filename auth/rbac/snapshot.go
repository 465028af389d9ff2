package rbac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

const snapshotKeyPrefix = "rbac:snapshot:"

// Snapshot 用户权限快照.
type Snapshot struct {
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	HighestRole string    `json:"highest_role,omitempty"`
	Level       int       `json:"level"`
	GeneratedAt time.Time `json:"generated_at"`
}

// UserPermissions 返回角色集合的权限快照.
//
// 配置了快照缓存时结果按排序后的角色集合缓存 DefaultSnapshotTTL，
// 缓存读写失败只记录日志，不影响返回值.
func (m *Manager) UserPermissions(ctx context.Context, roles []string) (snap *Snapshot) {
	defer m.recoverTo("UserPermissions", func() {
		snap = &Snapshot{Roles: []string{}, Permissions: []string{}, GeneratedAt: m.opts.now()}
	})

	key := snapshotKey(roles)
	if cached := m.loadSnapshot(ctx, key); cached != nil {
		return cached
	}

	snap = &Snapshot{
		Roles:       append([]string{}, roles...),
		Permissions: m.AllPermissions(roles),
		Level:       m.HighestRoleLevel(roles),
		GeneratedAt: m.opts.now(),
	}
	snap.HighestRole, _ = m.HighestRole(roles)

	m.storeSnapshot(ctx, key, snap)
	return snap
}

func snapshotKey(roles []string) string {
	return snapshotKeyPrefix + roleSetKey(roles)
}

func (m *Manager) loadSnapshot(ctx context.Context, key string) *Snapshot {
	if m.opts.snapshots == nil {
		return nil
	}
	raw, err := m.opts.snapshots.Get(ctx, key)
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		m.log.With(logger.String("key", key), logger.Err(err)).Warn("[RBAC] 权限快照反序列化失败")
		return nil
	}
	return &snap
}

func (m *Manager) storeSnapshot(ctx context.Context, key string, snap *Snapshot) {
	if m.opts.snapshots == nil {
		return
	}
	if err := m.opts.snapshots.Set(ctx, key, snap, m.opts.snapshotTTL); err != nil {
		m.log.With(logger.String("key", key), logger.Err(err)).Warn("[RBAC] 权限快照缓存失败")
	}
}

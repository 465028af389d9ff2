package rbac

import "fmt"

// Record 待过滤的数据记录.
type Record = map[string]any

// redactedFields 仅有 read 权限时从记录中移除的字段.
var redactedFields = []string{"private_notes", "internal_data", "email", "phone"}

// FilterRecords 按权限层级过滤记录.
//
//   - 拥有 "<type>.view_all"：返回全部记录
//   - 拥有 "<type>.view_own"：只返回 user_id 或 owner_id 等于 callerID 的记录
//   - 拥有 "<type>.read"：返回全部记录并移除敏感字段
//   - 否则返回空集合
//
// 返回的切片总是新分配的，不修改入参.
func (m *Manager) FilterRecords(roles []string, callerID string, records []Record, resourceType string) (out []Record) {
	defer m.recoverTo("FilterRecords", func() { out = []Record{} })

	switch {
	case m.HasPermission(roles, resourceType+".view_all"):
		return append(make([]Record, 0, len(records)), records...)

	case m.HasPermission(roles, resourceType+".view_own"):
		out = []Record{}
		if callerID == "" {
			return out
		}
		for _, r := range records {
			if ownedBy(r, "user_id", callerID) || ownedBy(r, "owner_id", callerID) {
				out = append(out, r)
			}
		}
		return out

	case m.HasPermission(roles, resourceType+".read"):
		out = make([]Record, 0, len(records))
		for _, r := range records {
			out = append(out, redact(r))
		}
		return out
	}
	return []Record{}
}

func ownedBy(r Record, field, id string) bool {
	switch v := r[field].(type) {
	case nil:
		return false
	case string:
		return v == id
	default:
		return fmt.Sprint(v) == id
	}
}

func redact(r Record) Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	for _, f := range redactedFields {
		delete(c, f)
	}
	return c
}

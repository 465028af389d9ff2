package rbac

import (
	"fmt"
	"regexp"
	"sort"
)

// permissionPattern 合法权限: "*"、"<category>.*"、"<category>.<action>[_<qualifier>]".
var permissionPattern = regexp.MustCompile(`^(\*|[a-z][a-z0-9]*\.(\*|[a-z][a-z0-9]*(_[a-z0-9]+)*))$`)

// ValidPermission 检查权限字符串格式.
func ValidPermission(p string) bool {
	return permissionPattern.MatchString(p)
}

// RoleDefinition 角色声明.
type RoleDefinition struct {
	// Name 角色名.
	Name string

	// DisplayName 展示名.
	DisplayName string

	// Level 等级，越大权限越高，全局唯一.
	Level int

	// Extends 继承的下级角色名，为空表示根角色.
	Extends string

	// Permissions 相对父角色新增的权限.
	Permissions []string
}

// Role 解析继承后的角色.
type Role struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Level       int      `json:"level"`
	Extends     string   `json:"extends,omitempty"`
	Permissions []string `json:"permissions"`
}

// resolvedRole 注册表内部持有的角色.
type resolvedRole struct {
	Role
	set map[string]struct{}
}

func (r *resolvedRole) has(p string) bool {
	_, ok := r.set[p]
	return ok
}

func (r *resolvedRole) clone() *Role {
	c := r.Role
	c.Permissions = append([]string(nil), r.Permissions...)
	return &c
}

// Registry 不可变的角色注册表.
//
// 构建时一次性展开继承链，每个角色持有父角色在前、去重保序的完整权限列表.
type Registry struct {
	roles   map[string]*resolvedRole
	ordered []*resolvedRole
}

// NewRegistry 构建角色注册表.
//
// 角色名或等级重复、继承未定义角色、继承成环、子角色等级不高于父角色、
// 权限格式非法时返回错误.
func NewRegistry(defs ...RoleDefinition) (*Registry, error) {
	byName := make(map[string]RoleDefinition, len(defs))
	levels := make(map[int]string, len(defs))

	for _, d := range defs {
		if d.Name == "" {
			return nil, ErrEmptyRoleName
		}
		if _, ok := byName[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, d.Name)
		}
		if d.Level <= 0 {
			return nil, fmt.Errorf("%w: %s level=%d", ErrInvalidLevel, d.Name, d.Level)
		}
		if other, ok := levels[d.Level]; ok {
			return nil, fmt.Errorf("%w: %s 与 %s 均为 %d", ErrDuplicateLevel, d.Name, other, d.Level)
		}
		for _, p := range d.Permissions {
			if !ValidPermission(p) {
				return nil, fmt.Errorf("%w: %s 的 %q", ErrInvalidPermission, d.Name, p)
			}
		}
		byName[d.Name] = d
		levels[d.Level] = d.Name
	}

	for _, d := range defs {
		if d.Extends == "" {
			continue
		}
		if _, ok := byName[d.Extends]; !ok {
			return nil, fmt.Errorf("%w: %s 继承 %s", ErrUnknownRole, d.Name, d.Extends)
		}
	}

	reg := &Registry{roles: make(map[string]*resolvedRole, len(defs))}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(defs))

	var resolve func(name string) (*resolvedRole, error)
	resolve = func(name string) (*resolvedRole, error) {
		switch state[name] {
		case done:
			return reg.roles[name], nil
		case visiting:
			return nil, fmt.Errorf("%w: %s", ErrRoleCycle, name)
		}
		state[name] = visiting

		d := byName[name]
		var inherited []string
		if d.Extends != "" {
			parent, err := resolve(d.Extends)
			if err != nil {
				return nil, err
			}
			inherited = parent.Permissions
		}

		perms := make([]string, 0, len(inherited)+len(d.Permissions))
		set := make(map[string]struct{}, cap(perms))
		for _, p := range append(append([]string(nil), inherited...), d.Permissions...) {
			if _, dup := set[p]; dup {
				continue
			}
			set[p] = struct{}{}
			perms = append(perms, p)
		}

		r := &resolvedRole{
			Role: Role{
				Name:        d.Name,
				DisplayName: d.DisplayName,
				Level:       d.Level,
				Extends:     d.Extends,
				Permissions: perms,
			},
			set: set,
		}
		reg.roles[name] = r
		state[name] = done
		return r, nil
	}

	for _, d := range defs {
		if _, err := resolve(d.Name); err != nil {
			return nil, err
		}
	}

	for _, d := range defs {
		if d.Extends == "" {
			continue
		}
		parent := byName[d.Extends]
		if d.Level <= parent.Level {
			return nil, fmt.Errorf("%w: %s(%d) 不高于父角色 %s(%d)",
				ErrInvalidLevel, d.Name, d.Level, parent.Name, parent.Level)
		}
	}

	for _, r := range reg.roles {
		reg.ordered = append(reg.ordered, r)
	}
	sort.Slice(reg.ordered, func(i, j int) bool { return reg.ordered[i].Level < reg.ordered[j].Level })
	return reg, nil
}

// MustNewRegistry 构建角色注册表，失败时 panic.
func MustNewRegistry(defs ...RoleDefinition) *Registry {
	reg, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return reg
}

// DefaultRegistry 返回内置角色注册表.
func DefaultRegistry() *Registry {
	return MustNewRegistry(DefaultRoles()...)
}

// Role 按名称查找角色，返回副本.
func (r *Registry) Role(name string) (*Role, bool) {
	role, ok := r.roles[name]
	if !ok {
		return nil, false
	}
	return role.clone(), true
}

// Roles 按等级升序返回全部角色副本.
func (r *Registry) Roles() []*Role {
	out := make([]*Role, len(r.ordered))
	for i, role := range r.ordered {
		out[i] = role.clone()
	}
	return out
}

func (r *Registry) lookup(name string) *resolvedRole {
	return r.roles[name]
}

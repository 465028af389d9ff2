package rbac

import "errors"

// 角色注册表构建错误.
var (
	// ErrEmptyRoleName 角色名为空.
	ErrEmptyRoleName = errors.New("rbac: 角色名不能为空")

	// ErrDuplicateRole 角色名重复.
	ErrDuplicateRole = errors.New("rbac: 角色名重复")

	// ErrDuplicateLevel 角色等级重复.
	ErrDuplicateLevel = errors.New("rbac: 角色等级重复")

	// ErrInvalidLevel 角色等级非法（必须为正且高于父角色）.
	ErrInvalidLevel = errors.New("rbac: 角色等级非法")

	// ErrUnknownRole 继承了未定义的角色.
	ErrUnknownRole = errors.New("rbac: 角色未定义")

	// ErrRoleCycle 角色继承存在环.
	ErrRoleCycle = errors.New("rbac: 角色继承存在环")

	// ErrInvalidPermission 权限字符串格式非法.
	ErrInvalidPermission = errors.New("rbac: 权限格式非法")
)

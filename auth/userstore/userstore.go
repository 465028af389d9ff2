// Package userstore 基于 gorm 读取数据服务中的用户与角色记录.
package userstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Tsukikage7/gatekeeper/auth"
)

// UserModel users 表映射.
type UserModel struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	Email         string `gorm:"type:varchar(255)"`
	Name          string `gorm:"type:varchar(255)"`
	EmailVerified bool
	PhoneVerified bool
	Roles         []UserRoleModel `gorm:"foreignKey:UserID;references:ID"`
}

// TableName 返回表名.
func (UserModel) TableName() string { return "users" }

// UserRoleModel user_roles 表映射.
type UserRoleModel struct {
	UserID string `gorm:"primaryKey;type:varchar(64)"`
	Role   string `gorm:"primaryKey;type:varchar(64)"`
}

// TableName 返回表名.
func (UserRoleModel) TableName() string { return "user_roles" }

// Store 实现 auth.UserStore.
type Store struct {
	db *gorm.DB
}

var _ auth.UserStore = (*Store)(nil)

// New 创建 Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 创建 users 与 user_roles 表，仅用于开发与测试.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&UserModel{}, &UserRoleModel{})
}

// User 按 ID 查询用户及其角色关联.
func (s *Store) User(ctx context.Context, id string) (*auth.User, error) {
	if id == "" {
		return nil, auth.ErrUserNotFound
	}

	var m UserModel
	err := s.db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("role") }).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userstore: 查询用户 %s: %w", id, err)
	}
	return m.toUser(), nil
}

// Save 写入用户及其角色关联，已有角色关联会被替换.
func (s *Store) Save(ctx context.Context, user *auth.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := fromUser(user)
		if err := tx.Omit("Roles").Save(&m).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&UserRoleModel{}).Error; err != nil {
			return err
		}
		if len(m.Roles) == 0 {
			return nil
		}
		return tx.Create(&m.Roles).Error
	})
}

func (m *UserModel) toUser() *auth.User {
	u := &auth.User{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		EmailVerified: m.EmailVerified,
		PhoneVerified: m.PhoneVerified,
		Roles:         make([]auth.RoleAssignment, 0, len(m.Roles)),
	}
	for _, r := range m.Roles {
		u.Roles = append(u.Roles, auth.RoleAssignment{Role: r.Role})
	}
	return u
}

func fromUser(u *auth.User) UserModel {
	m := UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
	}
	for _, r := range u.Roles {
		if r.Role == "" {
			continue
		}
		m.Roles = append(m.Roles, UserRoleModel{UserID: u.ID, Role: r.Role})
	}
	return m
}

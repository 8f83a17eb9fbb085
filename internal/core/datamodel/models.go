// Package datamodel holds the gorm row types. Schema changes ship as goose
// migrations under db/migrations; AutoMigrate is for throwaway databases.
package datamodel

import (
	"github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
	"github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	"github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// AutoMigrate creates every table, including the role_permissions join table
// with its own row type.
func AutoMigrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&role.Role{}, "Permissions", &role.RolePermission{}); err != nil {
		return err
	}
	return db.AutoMigrate(
		&permission.Permission{},
		&role.Role{},
		&role.RolePermission{},
		&user.User{},
		&user.UserRole{},
	)
}

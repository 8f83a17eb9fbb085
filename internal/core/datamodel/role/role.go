package role

import (
	"time"

	"github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
)

type Role struct {
	ID          int64                   `gorm:"primaryKey"`
	Name        string                  `gorm:"column:name;uniqueIndex;not null"`
	Description string                  `gorm:"column:description"`
	IsSystem    bool                    `gorm:"column:is_system;not null;default:false"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	Permissions []permission.Permission `gorm:"many2many:role_permissions;joinForeignKey:RoleID;joinReferences:PermissionID"`
}

func (Role) TableName() string { return "roles" }

type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RolePermission) TableName() string { return "role_permissions" }

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/accessctl/internal"
	permissionDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"github.com/frahmantamala/accessctl/internal/role"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) withPermissions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Permissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("permissions.name ASC")
	})
}

func (r *RoleRepository) List(ctx context.Context) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	err := r.withPermissions(ctx).Order("name ASC").Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	var ro roleDatamodel.Role
	err := r.withPermissions(ctx).Where("id = ?", id).First(&ro).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ro, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	var ro roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&ro).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ro, nil
}

func (r *RoleRepository) Create(ctx context.Context, ro *roleDatamodel.Role, permissionIDs []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Permissions").Create(ro).Error; err != nil {
			return translate(err)
		}
		return replaceGrants(tx, ro.ID, permissionIDs)
	})
}

func (r *RoleRepository) Update(ctx context.Context, ro *roleDatamodel.Role, oldName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&roleDatamodel.Role{}).Where("id = ?", ro.ID).Updates(map[string]interface{}{
			"name":        ro.Name,
			"description": ro.Description,
		}).Error
		if err != nil {
			return translate(err)
		}
		if oldName == ro.Name {
			return nil
		}
		return tx.Model(&userDatamodel.UserRole{}).
			Where("role_name = ?", oldName).
			Update("role_name", ro.Name).Error
	})
}

func (r *RoleRepository) Delete(ctx context.Context, ro *roleDatamodel.Role, cascade bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holders int64
		if err := tx.Model(&userDatamodel.UserRole{}).Where("role_name = ?", ro.Name).Count(&holders).Error; err != nil {
			return err
		}
		if holders > 0 {
			if !cascade {
				return internal.ErrRoleInUse
			}
			if err := tx.Where("role_name = ?", ro.Name).Delete(&userDatamodel.UserRole{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("role_id = ?", ro.ID).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&roleDatamodel.Role{}, ro.ID).Error
	})
}

func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceGrants(tx, roleID, permissionIDs)
	})
}

// replaceGrants must run inside a transaction.
func replaceGrants(tx *gorm.DB, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) > 0 {
		var found int64
		if err := tx.Model(&permissionDatamodel.Permission{}).Where("id IN ?", permissionIDs).Count(&found).Error; err != nil {
			return err
		}
		if found != int64(len(permissionIDs)) {
			return internal.ErrPermissionNotFound
		}
	}

	if err := tx.Where("role_id = ?", roleID).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
		return err
	}

	if len(permissionIDs) > 0 {
		grants := make([]roleDatamodel.RolePermission, 0, len(permissionIDs))
		for _, pid := range permissionIDs {
			grants = append(grants, roleDatamodel.RolePermission{RoleID: roleID, PermissionID: pid})
		}
		if err := tx.Create(&grants).Error; err != nil {
			return err
		}
	}

	return tx.Model(&roleDatamodel.Role{}).Where("id = ?", roleID).Update("updated_at", time.Now()).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrRoleExists
	}
	return err
}

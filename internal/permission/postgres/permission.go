package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/accessctl/internal"
	permissionDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	"github.com/frahmantamala/accessctl/internal/permission"
	"gorm.io/gorm"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) List(ctx context.Context) ([]*permissionDatamodel.Permission, error) {
	var perms []*permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Order("name ASC").Find(&perms).Error
	return perms, err
}

func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) Create(ctx context.Context, p *permissionDatamodel.Permission) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *PermissionRepository) Update(ctx context.Context, p *permissionDatamodel.Permission) error {
	return translate(r.db.WithContext(ctx).Save(p).Error)
}

func (r *PermissionRepository) Delete(ctx context.Context, id int64, cascade bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&roleDatamodel.RolePermission{}).Where("permission_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			if !cascade {
				return internal.ErrPermissionInUse
			}
			if err := tx.Where("permission_id = ?", id).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&permissionDatamodel.Permission{}, id).Error
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrPermissionExists
	}
	return err
}

package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/accessctl/internal"
	roleDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/accessctl/internal/core/datamodel/user"
	"github.com/frahmantamala/accessctl/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) withRoles(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Roles", func(db *gorm.DB) *gorm.DB {
		return db.Order("role_name ASC")
	})
}

func (r *UserRepository) List(ctx context.Context) ([]*userDatamodel.User, error) {
	var users []*userDatamodel.User
	err := r.withRoles(ctx).Order("id ASC").Find(&users).Error
	return users, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.withRoles(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User, roles []string, grantedBy *int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Roles").Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.ErrEmailExists
			}
			return err
		}
		return replaceRoles(tx, u.ID, roles, grantedBy)
	})
}

func (r *UserRepository) Update(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", u.ID).Updates(map[string]interface{}{
		"name":      u.Name,
		"phone":     u.Phone,
		"company":   u.Company,
		"is_active": u.IsActive,
	}).Error
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&userDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&userDatamodel.User{}, id).Error
	})
}

func (r *UserRepository) ReplaceRoles(ctx context.Context, userID int64, roles []string, grantedBy *int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceRoles(tx, userID, roles, grantedBy)
	})
}

func (r *UserRepository) ExistingRoles(ctx context.Context, names []string) ([]string, error) {
	return existingRoles(r.db.WithContext(ctx), names)
}

func existingRoles(db *gorm.DB, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []string
	err := db.Model(&roleDatamodel.Role{}).Where("name IN ?", names).Order("name ASC").Pluck("name", &found).Error
	return found, err
}

// replaceRoles must run inside a transaction. Role existence is checked in
// the same transaction so a concurrent role delete cannot slip in between.
func replaceRoles(tx *gorm.DB, userID int64, roles []string, grantedBy *int64) error {
	found, err := existingRoles(tx, roles)
	if err != nil {
		return err
	}
	if len(found) != len(roles) {
		return internal.ErrRoleNotFound.WithDetails(map[string]interface{}{"missing": missing(found, roles)})
	}

	if err := tx.Where("user_id = ?", userID).Delete(&userDatamodel.UserRole{}).Error; err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}

	rows := make([]userDatamodel.UserRole, 0, len(roles))
	for _, name := range roles {
		rows = append(rows, userDatamodel.UserRole{UserID: userID, RoleName: name, GrantedBy: grantedBy})
	}
	return tx.Create(&rows).Error
}

func missing(found, wanted []string) []string {
	have := make(map[string]struct{}, len(found))
	for _, n := range found {
		have[n] = struct{}{}
	}
	var out []string
	for _, n := range wanted {
		if _, ok := have[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

package role

import (
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/common/validation"
)

type CreateRoleDTO struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	PermissionIDs []int64 `json:"permission_ids"`
}

func (d *CreateRoleDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.PermissionIDs = uniqueIDs(d.PermissionIDs)
}

func (d CreateRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(64).RoleName()
	v.Field("description", d.Description).MaxLength(500)
	v.Field("permission_ids", d.PermissionIDs).Custom(positiveIDs("permission_ids"))
	return v.Validate()
}

type UpdateRoleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (d *UpdateRoleDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
}

func (d UpdateRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(64).RoleName()
	v.Field("description", d.Description).MaxLength(500)
	return v.Validate()
}

// ReplacePermissionsDTO is a set, not a patch: the role ends up with exactly
// these permissions.
type ReplacePermissionsDTO struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

func (d *ReplacePermissionsDTO) Normalize() {
	d.PermissionIDs = uniqueIDs(d.PermissionIDs)
}

// Validate requires the field to be present; an explicit [] clears the role.
func (d ReplacePermissionsDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("permission_ids", d.PermissionIDs).
		Custom(func(value interface{}) *internal.AppError {
			if ids, _ := value.([]int64); ids == nil {
				return internal.NewValidationFieldError("permission_ids", "permission_ids is required", internal.ErrCodeValidationFailed)
			}
			return nil
		}).
		Custom(positiveIDs("permission_ids"))
	return v.Validate()
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}

func positiveIDs(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		ids, _ := value.([]int64)
		for _, id := range ids {
			if id <= 0 {
				return internal.NewValidationFieldError(field, field+" must contain positive ids", internal.ErrCodeInvalidID)
			}
		}
		return nil
	}
}

func uniqueIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package user

import (
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/common/validation"
	"github.com/frahmantamala/accessctl/internal/rbac"
)

const maxBulkItems = 100

type CreateUserDTO struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Company  string   `json:"company"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	IsActive *bool    `json:"is_active"`
}

func (d *CreateUserDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Company = strings.TrimSpace(d.Company)
	d.Roles = uniqueRoles(d.Roles)
}

func (d CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(255).Email()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("phone", d.Phone).MaxLength(32)
	v.Field("company", d.Company).MaxLength(100)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	v.Field("roles", d.Roles).Custom(roleNames("roles"))
	return v.Validate()
}

// RegisterDTO is the public sign-up shape. Roles come from configuration.
type RegisterDTO struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Password string `json:"password"`
}

func (d *RegisterDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Company = strings.TrimSpace(d.Company)
}

func (d RegisterDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(255).Email()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("phone", d.Phone).MaxLength(32)
	v.Field("company", d.Company).MaxLength(100)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	return v.Validate()
}

type UpdateUserDTO struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	IsActive *bool  `json:"is_active"`
}

func (d *UpdateUserDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Company = strings.TrimSpace(d.Company)
}

func (d UpdateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("phone", d.Phone).MaxLength(32)
	v.Field("company", d.Company).MaxLength(100)
	return v.Validate()
}

// ReplaceRolesDTO is a set, not a patch: the user ends up holding exactly
// these role names.
type ReplaceRolesDTO struct {
	Roles []string `json:"roles"`
}

func (d *ReplaceRolesDTO) Normalize() {
	d.Roles = uniqueRoles(d.Roles)
}

func (d ReplaceRolesDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("roles", d.Roles).
		Custom(func(value interface{}) *internal.AppError {
			if roles, _ := value.([]string); roles == nil {
				return internal.NewValidationFieldError("roles", "roles is required", internal.ErrCodeValidationFailed)
			}
			return nil
		}).
		Custom(roleNames("roles"))
	return v.Validate()
}

type BulkRoleAssignment struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

type BulkReplaceRolesDTO struct {
	Items []BulkRoleAssignment `json:"items"`
}

func (d BulkReplaceRolesDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("items", d.Items).Custom(func(value interface{}) *internal.AppError {
		items, _ := value.([]BulkRoleAssignment)
		switch {
		case len(items) == 0:
			return internal.NewValidationFieldError("items", "items must not be empty", internal.ErrCodeValidationFailed)
		case len(items) > maxBulkItems:
			return internal.NewValidationFieldError("items", "items must not exceed 100 entries", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	return v.Validate()
}

// BulkItemResult reports one assignment. Error is set only when Status is
// "error".
type BulkItemResult struct {
	UserID int64              `json:"user_id"`
	Status string             `json:"status"`
	Roles  []string           `json:"roles,omitempty"`
	Error  *internal.AppError `json:"error,omitempty"`
}

type BulkReplaceRolesResponse struct {
	Results        []BulkItemResult `json:"results"`
	PartialFailure bool             `json:"partial_failure"`
}

type UsersResponse struct {
	Users []*User `json:"users"`
}

type PermissionsResponse struct {
	UserID      int64             `json:"user_id"`
	Roles       []string          `json:"roles"`
	Permissions []rbac.Permission `json:"permissions"`
}

type PermissionCheckResponse struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

func roleNames(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		roles, _ := value.([]string)
		for _, name := range roles {
			if appErr := validation.ValidateRoleName(name); appErr != nil {
				return internal.NewValidationFieldError(field, "invalid role name: "+name, internal.ErrCodeInvalidName)
			}
		}
		return nil
	}
}

func uniqueRoles(roles []string) []string {
	if roles == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

package permission

import (
	"strings"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/core/common/validation"
)

// PermissionDTO is the body for both create and update. Update replaces
// every field; an empty name is derived from resource and action.
type PermissionDTO struct {
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (d *PermissionDTO) Normalize() {
	d.Resource = strings.TrimSpace(d.Resource)
	d.Action = strings.TrimSpace(d.Action)
	d.Description = strings.TrimSpace(d.Description)
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" && d.Resource != "" && d.Action != "" {
		d.Name = DefaultName(d.Resource, d.Action)
	}
}

func (d PermissionDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("resource", d.Resource).Required().MaxLength(64).Segment()
	v.Field("action", d.Action).Required().MaxLength(64).Segment()
	v.Field("name", d.Name).Required().MaxLength(128).PermissionName()
	v.Field("description", d.Description).MaxLength(500)
	return v.Validate()
}

type PermissionsResponse struct {
	Permissions []*Permission `json:"permissions"`
}

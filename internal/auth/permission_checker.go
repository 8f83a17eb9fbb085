package auth

import (
	"context"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/rbac"
)

// PermissionChecker is satisfied by *rbac.Resolver.
type PermissionChecker interface {
	HasPermission(ctx context.Context, user rbac.User, name string) (bool, error)
	HasAnyPermission(ctx context.Context, user rbac.User, names []string) (bool, error)
	HasAllPermissions(ctx context.Context, user rbac.User, names []string) (bool, error)
}

var _ PermissionChecker = (*rbac.Resolver)(nil)

// Subject converts the request principal into the resolver's user.
func Subject(p *internal.Principal) rbac.User {
	return rbac.User{ID: p.ID, Email: p.Email, Roles: p.Roles}
}

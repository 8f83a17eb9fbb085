package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/rbac"
	"github.com/frahmantamala/accessctl/internal/transport"
)

// RBACAuthorization guards routes server-side. A resolver error denies the
// request with a 500; it never lets it through.
type RBACAuthorization struct {
	checker PermissionChecker
	logger  *slog.Logger
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		checker: checker,
		logger:  logger,
	}
}

type decision func(ctx context.Context, subject rbac.User) (bool, error)

func (ra *RBACAuthorization) guard(required []string, decide decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := internal.PrincipalFromContext(ctx)
			if !ok {
				ra.logger.WarnContext(ctx, "authorization check failed: no principal in context")
				transport.WriteAppError(w, internal.ErrMissingToken)
				return
			}

			allowed, err := decide(ctx, Subject(p))
			if err != nil {
				ra.logger.ErrorContext(ctx, "authorization check failed", "error", err, "user_id", p.ID, "required", required)
				transport.WriteAppError(w, internal.NewInternalError("authorization unavailable", err))
				return
			}

			if !allowed {
				ra.logger.WarnContext(ctx, "access denied",
					"user_id", p.ID,
					"roles", p.Roles,
					"required", required,
					"path", r.URL.Path)
				transport.WriteAppError(w, internal.ErrInsufficientPermissions)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Require admits callers holding the permission.
func (ra *RBACAuthorization) Require(permission string) func(http.Handler) http.Handler {
	return ra.guard([]string{permission}, func(ctx context.Context, u rbac.User) (bool, error) {
		return ra.checker.HasPermission(ctx, u, permission)
	})
}

func (ra *RBACAuthorization) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return ra.guard(permissions, func(ctx context.Context, u rbac.User) (bool, error) {
		return ra.checker.HasAnyPermission(ctx, u, permissions)
	})
}

func (ra *RBACAuthorization) RequireAll(permissions ...string) func(http.Handler) http.Handler {
	return ra.guard(permissions, func(ctx context.Context, u rbac.User) (bool, error) {
		return ra.checker.HasAllPermissions(ctx, u, permissions)
	})
}

// RequireRole admits callers holding any of the roles. Role checks never
// touch storage.
func (ra *RBACAuthorization) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return ra.guard(roles, func(_ context.Context, u rbac.User) (bool, error) {
		return rbac.HasAnyRole(u, roles), nil
	})
}

package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/accessctl/internal/auth"
	"github.com/frahmantamala/accessctl/internal/permission"
	"github.com/frahmantamala/accessctl/internal/role"
	"github.com/frahmantamala/accessctl/internal/transport/middleware"
	"github.com/frahmantamala/accessctl/internal/transport/swagger"
	"github.com/frahmantamala/accessctl/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

const APIBasePath = "/api/v1"

// Handlers is everything RegisterAllRoutes mounts. Nil handlers leave their
// routes out.
type Handlers struct {
	Health     *HealthHandler
	Auth       *auth.Handler
	User       *user.Handler
	Role       *role.Handler
	Permission *permission.Handler

	// Authorization guards every admin route.
	Authorization *auth.RBACAuthorization
	// RequestValidator checks admin requests against the API description.
	RequestValidator *middleware.OpenAPIValidator

	AllowedOrigins string
	OpenAPIPath    string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	router.Use(middleware.CORS(h.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogging)
	router.Use(middleware.RecoveryMiddleware(logger))

	if h.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, h.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))
	}

	router.Route(APIBasePath, func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.RefreshToken)
			ar.Post("/register", h.Auth.Register)
			ar.With(h.Auth.AuthMiddleware).Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
				pr.Get("/users/me/permissions", h.User.GetCurrentUserPermissions)
			}

			if h.Authorization == nil {
				return
			}

			pr.Route("/admin", func(ad chi.Router) {
				if h.RequestValidator != nil {
					ad.Use(h.RequestValidator.Middleware)
				}
				registerAdminRoutes(ad, h)
			})
		})
	})
}

func registerAdminRoutes(r chi.Router, h Handlers) {
	require := h.Authorization.Require

	if u := h.User; u != nil {
		r.Route("/users", func(ur chi.Router) {
			ur.With(require(auth.PermUsersRead)).Get("/", u.ListUsers)
			ur.With(require(auth.PermUsersCreate)).Post("/", u.CreateUser)
			ur.With(require(auth.PermUsersAssignRoles)).Post("/roles/bulk", u.BulkReplaceRoles)

			ur.Route("/{id}", func(ir chi.Router) {
				ir.With(require(auth.PermUsersRead)).Get("/", u.GetUser)
				ir.With(require(auth.PermUsersUpdate)).Put("/", u.UpdateUser)
				ir.With(require(auth.PermUsersDelete)).Delete("/", u.DeleteUser)
				ir.With(require(auth.PermUsersAssignRoles)).Put("/roles", u.ReplaceRoles)
				ir.With(require(auth.PermUsersRead)).Get("/permissions", u.GetUserPermissions)
				ir.With(require(auth.PermUsersRead)).Get("/permissions/{permission}", u.CheckUserPermission)
			})
		})
	}

	if ro := h.Role; ro != nil {
		r.Route("/roles", func(rr chi.Router) {
			rr.With(require(auth.PermRolesRead)).Get("/", ro.ListRoles)
			rr.With(require(auth.PermRolesCreate)).Post("/", ro.CreateRole)

			rr.Route("/{id}", func(ir chi.Router) {
				ir.With(require(auth.PermRolesRead)).Get("/", ro.GetRole)
				ir.With(require(auth.PermRolesUpdate)).Put("/", ro.UpdateRole)
				ir.With(require(auth.PermRolesDelete)).Delete("/", ro.DeleteRole)
				ir.With(require(auth.PermRolesUpdate)).Put("/permissions", ro.ReplacePermissions)
			})
		})
	}

	if p := h.Permission; p != nil {
		r.Route("/permissions", func(pr chi.Router) {
			pr.With(require(auth.PermPermissionsRead)).Get("/", p.ListPermissions)
			pr.With(require(auth.PermPermissionsCreate)).Post("/", p.CreatePermission)

			pr.Route("/{id}", func(ir chi.Router) {
				ir.With(require(auth.PermPermissionsRead)).Get("/", p.GetPermission)
				ir.With(require(auth.PermPermissionsUpdate)).Put("/", p.UpdatePermission)
				ir.With(require(auth.PermPermissionsDelete)).Delete("/", p.DeletePermission)
			})
		})
	}
}

package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, actor *internal.Principal, dto CreateUserDTO) (*User, error)
	Update(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error)
	Delete(ctx context.Context, id int64) error
	ReplaceRoles(ctx context.Context, actor *internal.Principal, userID int64, dto ReplaceRolesDTO) (*User, error)
	BulkReplaceRoles(ctx context.Context, actor *internal.Principal, dto BulkReplaceRolesDTO) (*BulkReplaceRolesResponse, error)
	EffectivePermissions(ctx context.Context, userID int64) (*PermissionsResponse, error)
	CheckPermission(ctx context.Context, userID int64, name string) (*PermissionCheckResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	u, err := h.Service.Get(r.Context(), p.ID)
	if err != nil {
		h.Logger.Error("GetCurrentUser: service error", "user_id", p.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

// GetCurrentUserPermissions handles GET /users/me/permissions
func (h *Handler) GetCurrentUserPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	perms, err := h.Service.EffectivePermissions(r.Context(), p.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, perms)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.List(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	u, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("CreateUser: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	u, err := h.Service.Create(r.Context(), p, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto UpdateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("UpdateUser: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	u, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRoles handles PUT /users/{id}/roles
func (h *Handler) ReplaceRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto ReplaceRolesDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("ReplaceRoles: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	u, err := h.Service.ReplaceRoles(r.Context(), p, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

// BulkReplaceRoles answers 207 when some items failed.
func (h *Handler) BulkReplaceRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	var dto BulkReplaceRolesDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("BulkReplaceRoles: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	resp, err := h.Service.BulkReplaceRoles(r.Context(), p, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if resp.PartialFailure {
		status = http.StatusMultiStatus
	}
	h.WriteJSON(w, status, resp)
}

func (h *Handler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	perms, err := h.Service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, perms)
}

// CheckUserPermission handles GET /users/{id}/permissions/{permission}
func (h *Handler) CheckUserPermission(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	check, err := h.Service.CheckPermission(r.Context(), id, chi.URLParam(r, "permission"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, check)
}

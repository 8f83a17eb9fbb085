package permission

import (
	"context"
	"net/http"

	"github.com/frahmantamala/accessctl/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]*Permission, error)
	Get(ctx context.Context, id int64) (*Permission, error)
	Create(ctx context.Context, dto PermissionDTO) (*Permission, error)
	Update(ctx context.Context, id int64, dto PermissionDTO) (*Permission, error)
	Delete(ctx context.Context, id int64) error
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

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.List(r.Context())
	if err != nil {
		h.Logger.Error("ListPermissions: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto PermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("CreatePermission: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto PermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.Logger.Warn("UpdatePermission: invalid request body", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePermission(w http.ResponseWriter, r *http.Request) {
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

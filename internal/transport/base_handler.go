package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/pkg/logger"
	"github.com/go-chi/chi"
)

const maxBodyBytes = 1 << 20

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error envelope for failures that have no AppError.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Warn("http error", "status", status, "message", message)
	WriteAppError(w, errorForStatus(status, message))
}

// HandleServiceError maps AppErrors to their status; anything else is a 500
// and its cause is logged but not exposed.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.Logger.Error("service error", "error", err)
		}
		WriteAppError(w, appErr)
		return
	}

	h.Logger.Error("unhandled service error", "error", err)
	WriteAppError(w, internal.NewInternalError("Internal server error", err))
}

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return internal.NewValidationError(fmt.Sprintf("invalid request body: %v", err), internal.ErrCodeInvalidBody)
	}
	if dec.More() {
		return internal.NewValidationError("invalid request body: trailing data", internal.ErrCodeInvalidBody)
	}
	return nil
}

// IDParam parses a positive integer chi URL parameter.
func (h *BaseHandler) IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationFieldError(name, fmt.Sprintf("%s must be a positive integer", name), internal.ErrCodeInvalidID)
	}
	return id, nil
}

// Principal returns the authenticated caller or writes a 401.
func (h *BaseHandler) Principal(w http.ResponseWriter, r *http.Request) (*internal.Principal, bool) {
	p, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		WriteAppError(w, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
		return nil, false
	}
	return p, true
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}

	return authHeader[7:]
}

// WriteAppError is usable from middleware that has no BaseHandler.
func WriteAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorForStatus(status int, message string) *internal.AppError {
	switch status {
	case http.StatusBadRequest:
		return internal.NewValidationError(message, internal.ErrCodeValidationFailed)
	case http.StatusUnauthorized:
		return internal.NewUnauthorizedError(message, internal.ErrCodeInvalidToken)
	case http.StatusForbidden:
		return internal.NewForbiddenError(message, internal.ErrCodeInsufficientPermissions)
	case http.StatusNotFound:
		return internal.NewNotFoundError(message, internal.ErrorCode("NOT_FOUND"))
	case http.StatusConflict:
		return internal.NewConflictError(message, internal.ErrorCode("CONFLICT"))
	}
	appErr := internal.NewInternalError(message, errors.New(message))
	appErr.StatusCode = status
	return appErr
}

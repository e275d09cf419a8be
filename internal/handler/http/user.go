package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/service"
	"github.com/DrOksusu/dba-portal-auth/pkg/httputil"
	"github.com/DrOksusu/dba-portal-auth/pkg/middleware"
)

// AccountService covers the operations on an authenticated user.
type AccountService interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, input service.UpdateProfileInput) (*domain.User, error)
	Deactivate(ctx context.Context, id string) error
	Logout(ctx context.Context, userID, token string) error
	SessionSubject(ctx context.Context, token string) (*domain.User, error)
}

// UserHandler handles HTTP requests for /api/v1/users/me.
type UserHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(accounts AccountService, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.GetUser(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toUserResponse(user)})
}

// UpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if !decode(w, r, &req) {
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toUserResponse(user)})
}

// DeleteMe handles DELETE /api/v1/users/me. The account is deactivated and
// every session it holds is revoked.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Deactivate(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

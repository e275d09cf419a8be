package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/phone"
	"github.com/DrOksusu/dba-portal-auth/pkg/httputil"
	"github.com/DrOksusu/dba-portal-auth/pkg/middleware"
)

// PhoneVerifier issues and checks one-time codes.
type PhoneVerifier interface {
	RequestCode(ctx context.Context, phone string) error
	CheckCode(ctx context.Context, phone, code string) (bool, error)
}

// IdentityLinker resolves logins to users.
type IdentityLinker interface {
	LoginWithPhone(ctx context.Context, phone, code string) (*domain.LoginResult, error)
	LoginWithProvider(ctx context.Context, profile *domain.OAuthProfile) (*domain.LoginResult, error)
	OpenPending(token string) (*domain.OAuthProfile, error)
	CompleteWithVerifiedPhone(ctx context.Context, phone, code string, profile *domain.OAuthProfile) (*domain.LoginResult, error)
}

// SessionRefresher rotates a refresh token into a new pair.
type SessionRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

// ProfileFetcher exchanges a provider access token for the user's profile.
type ProfileFetcher interface {
	Profile(ctx context.Context, accessToken string) (*domain.OAuthProfile, error)
}

// AuthHandler handles HTTP requests for the /api/v1/auth endpoints.
type AuthHandler struct {
	verifier  PhoneVerifier
	identity  IdentityLinker
	sessions  SessionRefresher
	accounts  AccountService
	providers map[domain.Provider]ProfileFetcher
	logger    *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(
	verifier PhoneVerifier,
	identity IdentityLinker,
	sessions SessionRefresher,
	accounts AccountService,
	providers map[domain.Provider]ProfileFetcher,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		identity:  identity,
		sessions:  sessions,
		accounts:  accounts,
		providers: providers,
		logger:    logger,
	}
}

// --- Request DTOs ---

// SendCodeRequest asks for a verification code to be texted to Phone.
type SendCodeRequest struct {
	Phone string `json:"phone" validate:"required,max=20"`
}

// PhoneCodeRequest carries a phone number and the code sent to it.
type PhoneCodeRequest struct {
	Phone string `json:"phone" validate:"required,max=20"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ProviderLoginRequest carries an access token obtained from the provider's
// consent flow on the client.
type ProviderLoginRequest struct {
	AccessToken string `json:"access_token" validate:"required,max=4096"`
}

// SocialCompleteRequest finishes a provider login that was gated on phone
// verification. Code may be omitted if the phone was verified earlier.
type SocialCompleteRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
	Phone        string `json:"phone" validate:"required,max=20"`
	Code         string `json:"code" validate:"omitempty,len=6,numeric"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// --- Handlers ---

// SendCode handles POST /api/v1/auth/phone/send
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.verifier.RequestCode(r.Context(), req.Phone); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: map[string]string{"phone": phone.Format(phone.Normalize(req.Phone))},
	})
}

// VerifyCode handles POST /api/v1/auth/phone/verify
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req PhoneCodeRequest
	if !decode(w, r, &req) {
		return
	}

	ok, err := h.verifier.CheckCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !ok {
		httputil.WriteError(w, r, domain.ErrPhoneVerificationFailed, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]bool{"verified": true}})
}

// PhoneLogin handles POST /api/v1/auth/phone/login
func (h *AuthHandler) PhoneLogin(w http.ResponseWriter, r *http.Request) {
	var req PhoneCodeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.identity.LoginWithPhone(r.Context(), req.Phone, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toLoginResponse(res)})
}

// ProviderLogin returns the handler for POST /api/v1/auth/{google,kakao}.
func (h *AuthHandler) ProviderLogin(p domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fetcher, ok := h.providers[p]
		if !ok {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "PROVIDER_DISABLED", Message: string(p) + " login is not configured"},
			})
			return
		}

		var req ProviderLoginRequest
		if !decode(w, r, &req) {
			return
		}

		profile, err := fetcher.Profile(r.Context(), req.AccessToken)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}

		res, err := h.identity.LoginWithProvider(r.Context(), profile)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}

		status := http.StatusOK
		if res.PhoneVerificationRequired {
			status = http.StatusAccepted
		}
		httputil.WriteJSON(w, status, httputil.Response{Data: toLoginResponse(res)})
	}
}

// SocialComplete handles POST /api/v1/auth/social/complete
func (h *AuthHandler) SocialComplete(w http.ResponseWriter, r *http.Request) {
	var req SocialCompleteRequest
	if !decode(w, r, &req) {
		return
	}

	profile, err := h.identity.OpenPending(req.PendingToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.identity.CompleteWithVerifiedPhone(r.Context(), req.Phone, req.Code, profile)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if res.IsNewUser {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: toLoginResponse(res)})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"tokens": toTokenResponse(tokens)}})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.accounts.Logout(ctx, middleware.UserIDFromContext(ctx), middleware.TokenFromContext(ctx)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
	"github.com/DrOksusu/dba-portal-auth/pkg/httputil"
	"github.com/DrOksusu/dba-portal-auth/pkg/logger"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	tokenKey  contextKeyType = "bearer_token"
)

// SubjectResolver maps a bearer token to the id of the user it was issued to.
// Errors that map to a 5xx status are written as they are; any other error
// rejects the request with 401.
type SubjectResolver func(ctx context.Context, token string) (string, error)

// Auth validates the bearer token with resolve and stores the subject and
// the raw token in the request context.
func Auth(resolve SubjectResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
				return
			}

			userID, err := resolve(r.Context(), token)
			if err != nil {
				// A fault behind the resolver says nothing about the token.
				if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
					httputil.WriteError(w, r, err, nil)
					return
				}
				logger.FromContext(r.Context()).DebugContext(r.Context(), "bearer token rejected",
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, token)
			ctx = logger.WithUserID(ctx, userID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// TokenFromContext returns the bearer token the request was authenticated with.
func TokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{Code: code, Message: message},
	})
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/pkg/health"
	"github.com/DrOksusu/dba-portal-auth/pkg/middleware"
)

// Per-IP request limits on the public auth endpoints.
var (
	smsLimit     = middleware.RateLimitConfig{Name: "sms", Window: 30 * time.Second, Max: 1}
	authLimit    = middleware.RateLimitConfig{Name: "auth", Window: 15 * time.Minute, Max: 5}
	refreshLimit = middleware.RateLimitConfig{Name: "refresh", Window: time.Minute, Max: 10}
	userLimit    = middleware.RateLimitConfig{Name: "user", Window: 15 * time.Minute, Max: 200}
)

// Services bundles what the router dispatches to.
type Services struct {
	Verifier  PhoneVerifier
	Identity  IdentityLinker
	Sessions  SessionRefresher
	Accounts  AccountService
	Providers map[domain.Provider]ProfileFetcher
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	svc Services,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics)

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	requireSession := middleware.Auth(func(ctx context.Context, token string) (string, error) {
		user, err := svc.Accounts.SessionSubject(ctx, token)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	})

	authHandler := NewAuthHandler(svc.Verifier, svc.Identity, svc.Sessions, svc.Accounts, svc.Providers, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.With(middleware.RateLimit(smsLimit, logger)).Post("/phone/send", authHandler.SendCode)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(authLimit, logger))
			r.Post("/phone/verify", authHandler.VerifyCode)
			r.Post("/phone/login", authHandler.PhoneLogin)
			r.Post("/google", authHandler.ProviderLogin(domain.ProviderGoogle))
			r.Post("/kakao", authHandler.ProviderLogin(domain.ProviderKakao))
			r.Post("/social/complete", authHandler.SocialComplete)
		})

		r.With(middleware.RateLimit(refreshLimit, logger)).Post("/refresh", authHandler.Refresh)
		r.With(requireSession).Post("/logout", authHandler.Logout)
	})

	userHandler := NewUserHandler(svc.Accounts, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(middleware.RateLimit(userLimit, logger))
		r.Use(requireSession)

		r.Get("/me", userHandler.GetMe)
		r.Put("/me", userHandler.UpdateMe)
		r.Delete("/me", userHandler.DeleteMe)
	})

	return r
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// Google resolves Google access tokens. Google never vouches for a phone.
type Google struct {
	clientID   string
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewGoogle creates a Google profile fetcher accepting tokens issued to clientID.
func NewGoogle(clientID string, httpClient *http.Client, logger *slog.Logger) *Google {
	return &Google{
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// WithEndpoint points the client at a different API root. Used by tests.
func (g *Google) WithEndpoint(endpoint string) *Google {
	g.endpoint = endpoint
	return g
}

// Profile checks the token audience and fetches the user's profile.
func (g *Google) Profile(ctx context.Context, accessToken string) (*domain.OAuthProfile, error) {
	if accessToken == "" {
		return nil, ErrInvalidProviderToken
	}

	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("create google oauth2 service: %w", err))
	}

	info, err := svc.Tokeninfo().AccessToken(accessToken).Context(ctx).Do()
	if err != nil {
		return nil, g.mapError(ctx, "tokeninfo", err)
	}
	if g.clientID != "" && info.Audience != g.clientID && info.IssuedTo != g.clientID {
		g.logger.WarnContext(ctx, "google token issued to another client",
			slog.String("audience", info.Audience),
		)
		return nil, ErrInvalidProviderToken
	}

	ui, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, g.mapError(ctx, "userinfo", err)
	}
	if ui.Id == "" {
		return nil, apperrors.BadGateway("google returned a profile without id", errors.New("empty id"))
	}

	return &domain.OAuthProfile{
		Provider:     domain.ProviderGoogle,
		ProviderID:   ui.Id,
		Email:        optional(ui.Email),
		Name:         optional(ui.Name),
		ProfileImage: optional(ui.Picture),
	}, nil
}

func (g *Google) service(ctx context.Context, accessToken string) (*oauth2api.Service, error) {
	base := g.httpClient
	if base == nil {
		base = http.DefaultClient
	}
	authed := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return oauth2api.NewService(ctx, opts...)
}

func (g *Google) mapError(ctx context.Context, call string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 {
		return ErrInvalidProviderToken
	}
	g.logger.ErrorContext(ctx, "google api call failed",
		slog.String("call", call),
		slog.String("error", err.Error()),
	)
	return apperrors.BadGateway("google api unavailable", fmt.Errorf("%s: %w", call, err))
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/phone"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
	"github.com/DrOksusu/dba-portal-auth/pkg/httpclient"
)

const kakaoUserPath = "/v2/user/me"

// Kakao resolves Kakao access tokens. Kakao vouches for the account's phone
// number when the user consented to share it.
type Kakao struct {
	baseURL string
	client  httpclient.Doer
	logger  *slog.Logger
}

// NewKakao creates a Kakao profile fetcher against the given API root.
func NewKakao(baseURL string, client httpclient.Doer, logger *slog.Logger) *Kakao {
	return &Kakao{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type kakaoUser struct {
	ID      int64 `json:"id"`
	Account struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
		Profile     struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// Profile fetches the user behind accessToken.
func (k *Kakao) Profile(ctx context.Context, accessToken string) (*domain.OAuthProfile, error) {
	if accessToken == "" {
		return nil, ErrInvalidProviderToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+kakaoUserPath, http.NoBody)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("create kakao request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := k.client.Do(ctx, req)
	if err != nil {
		k.logger.ErrorContext(ctx, "kakao api call failed", slog.String("error", err.Error()))
		return nil, apperrors.BadGateway("kakao api unavailable", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := httpclient.ParseResponseError(resp, "kakao")
		if errors.Is(perr, apperrors.ErrUnauthorized) || errors.Is(perr, apperrors.ErrInvalidInput) {
			return nil, ErrInvalidProviderToken
		}
		return nil, perr
	}
	defer func() { _ = resp.Body.Close() }()

	var u kakaoUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, apperrors.BadGateway("invalid kakao profile", err)
	}
	if u.ID == 0 {
		return nil, apperrors.BadGateway("kakao returned a profile without id", errors.New("empty id"))
	}

	profile := &domain.OAuthProfile{
		Provider:     domain.ProviderKakao,
		ProviderID:   strconv.FormatInt(u.ID, 10),
		Email:        optional(u.Account.Email),
		Name:         optional(u.Account.Profile.Nickname),
		ProfileImage: optional(u.Account.Profile.ProfileImageURL),
	}
	if u.Account.PhoneNumber != "" {
		p := phone.Normalize(u.Account.PhoneNumber)
		profile.Phone = &p
	}
	return profile, nil
}

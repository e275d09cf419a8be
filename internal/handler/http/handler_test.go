package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	"github.com/DrOksusu/dba-portal-auth/internal/service"
	"github.com/DrOksusu/dba-portal-auth/pkg/health"
	"github.com/DrOksusu/dba-portal-auth/pkg/httputil"
	"github.com/DrOksusu/dba-portal-auth/pkg/middleware"
)

// ============================================================================
// Mocks
// ============================================================================

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) RequestCode(ctx context.Context, phone string) error {
	return m.Called(ctx, phone).Error(0)
}

func (m *mockVerifier) CheckCode(ctx context.Context, phone, code string) (bool, error) {
	args := m.Called(ctx, phone, code)
	return args.Bool(0), args.Error(1)
}

type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) LoginWithPhone(ctx context.Context, phone, code string) (*domain.LoginResult, error) {
	args := m.Called(ctx, phone, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginResult), args.Error(1)
}

func (m *mockIdentity) LoginWithProvider(ctx context.Context, profile *domain.OAuthProfile) (*domain.LoginResult, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginResult), args.Error(1)
}

func (m *mockIdentity) OpenPending(token string) (*domain.OAuthProfile, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OAuthProfile), args.Error(1)
}

func (m *mockIdentity) CompleteWithVerifiedPhone(ctx context.Context, phone, code string, profile *domain.OAuthProfile) (*domain.LoginResult, error) {
	args := m.Called(ctx, phone, code, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginResult), args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) GetUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAccounts) UpdateProfile(ctx context.Context, id string, input service.UpdateProfileInput) (*domain.User, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAccounts) Deactivate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAccounts) Logout(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

func (m *mockAccounts) SessionSubject(ctx context.Context, token string) (*domain.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Profile(ctx context.Context, accessToken string) (*domain.OAuthProfile, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OAuthProfile), args.Error(1)
}

// ============================================================================
// Helpers
// ============================================================================

type testServer struct {
	verifier *mockVerifier
	identity *mockIdentity
	sessions *mockSessions
	accounts *mockAccounts
	google   *mockFetcher
	kakao    *mockFetcher
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		verifier: new(mockVerifier),
		identity: new(mockIdentity),
		sessions: new(mockSessions),
		accounts: new(mockAccounts),
		google:   new(mockFetcher),
		kakao:    new(mockFetcher),
	}
	ts.handler = NewRouter(Services{
		Verifier: ts.verifier,
		Identity: ts.identity,
		Sessions: ts.sessions,
		Accounts: ts.accounts,
		Providers: map[domain.Provider]ProfileFetcher{
			domain.ProviderGoogle: ts.google,
			domain.ProviderKakao:  ts.kakao,
		},
	}, health.NewHandler(), discardLogger(), middleware.CORSConfig{AllowedOrigins: []string{"*"}})

	t.Cleanup(func() {
		ts.verifier.AssertExpectations(t)
		ts.identity.AssertExpectations(t)
		ts.sessions.AssertExpectations(t)
		ts.accounts.AssertExpectations(t)
		ts.google.AssertExpectations(t)
		ts.kakao.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(method, path string, body any, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) doRaw(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// decodeData unmarshals the "data" member of the response envelope into dst.
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var env httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotNil(t, env.Error, "expected an error envelope, got %s", rr.Body.String())
	return env.Error
}

func strPtr(s string) *string { return &s }

func sampleUser() *domain.User {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.User{
		ID:        "user-1",
		Phone:     "01012345678",
		Name:      strPtr("홍길동"),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		SocialAccounts: []domain.SocialAccount{{
			ID: "sa-1", UserID: "user-1", Provider: domain.ProviderKakao, ProviderID: "kakao-123",
			Email: strPtr("gd@example.com"), CreatedAt: now, UpdatedAt: now,
		}},
	}
}

func samplePair() *domain.TokenPair {
	return &domain.TokenPair{AccessToken: "access-token", RefreshToken: "refresh-token"}
}

// authenticate makes SessionSubject accept token for user.
func (ts *testServer) authenticate(token string, user *domain.User) {
	ts.accounts.On("SessionSubject", mock.Anything, token).Return(user, nil)
}

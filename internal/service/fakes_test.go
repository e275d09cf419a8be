package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/DrOksusu/dba-portal-auth/internal/auth"
	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// --- Test Clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- In-memory store ---

// memStore backs the fake repositories. It mirrors the uniqueness rules and
// conditional updates of the postgres schema.
type memStore struct {
	mu            sync.Mutex
	clock         *testClock
	users         map[string]domain.User
	accounts      map[string]domain.SocialAccount
	tokens        map[string]domain.JwtToken
	verifications []domain.PhoneVerification
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{
		clock:    clock,
		users:    make(map[string]domain.User),
		accounts: make(map[string]domain.SocialAccount),
		tokens:   make(map[string]domain.JwtToken),
	}
}

func accountKey(p domain.Provider, providerID string) string {
	return string(p) + ":" + providerID
}

func (s *memStore) userByPhone(phone string) (domain.User, bool) {
	for _, u := range s.users {
		if u.Phone == phone {
			return u, true
		}
	}
	return domain.User{}, false
}

// --- Users ---

type fakeUserRepo struct{ s *memStore }

func (r fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.userByPhone(phone)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) CreateWithSocialAccount(_ context.Context, u *domain.User, a *domain.SocialAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.userByPhone(u.Phone); taken {
		return apperrors.AlreadyExists("user", "phone", u.Phone)
	}
	if _, taken := r.s.accounts[accountKey(a.Provider, a.ProviderID)]; taken {
		return apperrors.AlreadyExists("social account", "provider_id", a.ProviderID)
	}
	r.s.users[u.ID] = *u
	r.s.accounts[accountKey(a.Provider, a.ProviderID)] = *a
	return nil
}

func (r fakeUserRepo) Update(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return apperrors.ErrNotFound
	}
	stored := *u
	stored.SocialAccounts = nil
	r.s.users[u.ID] = stored
	return nil
}

func (r fakeUserRepo) Deactivate(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.IsActive = false
	u.UpdatedAt = at
	r.s.users[id] = u
	return nil
}

// --- Social accounts ---

type fakeAccountRepo struct{ s *memStore }

func (r fakeAccountRepo) GetByProvider(_ context.Context, p domain.Provider, providerID string) (*domain.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountKey(p, providerID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}

func (r fakeAccountRepo) ListByUserID(_ context.Context, userID string) ([]domain.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.SocialAccount{}
	for _, a := range r.s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r fakeAccountRepo) Create(_ context.Context, a *domain.SocialAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := accountKey(a.Provider, a.ProviderID)
	if _, taken := r.s.accounts[key]; taken {
		return apperrors.AlreadyExists("social account", "provider_id", a.ProviderID)
	}
	r.s.accounts[key] = *a
	return nil
}

func (r fakeAccountRepo) UpdateByProvider(_ context.Context, a *domain.SocialAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := accountKey(a.Provider, a.ProviderID)
	stored, ok := r.s.accounts[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	stored.Email, stored.Name, stored.ProfileImage, stored.UpdatedAt = a.Email, a.Name, a.ProfileImage, a.UpdatedAt
	r.s.accounts[key] = stored
	return nil
}

// --- Tokens ---

type fakeTokenRepo struct{ s *memStore }

func (r fakeTokenRepo) ReplaceForUser(_ context.Context, userID string, tokens ...*domain.JwtToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return apperrors.ErrNotFound
	}
	r.s.replaceLocked(userID, tokens)
	return nil
}

func (r fakeTokenRepo) Rotate(_ context.Context, refreshHash, userID string, tokens ...*domain.JwtToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[refreshHash]
	if !ok || t.TokenType != domain.TokenTypeRefresh || t.UserID != userID ||
		t.IsRevoked || !r.s.clock.Now().Before(t.ExpiresAt) {
		return apperrors.ErrNotFound
	}
	t.IsRevoked = true
	r.s.tokens[refreshHash] = t
	r.s.replaceLocked(userID, tokens)
	return nil
}

func (s *memStore) replaceLocked(userID string, tokens []*domain.JwtToken) {
	for h, t := range s.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			s.tokens[h] = t
		}
	}
	for _, t := range tokens {
		s.tokens[t.TokenHash] = *t
	}
}

func (r fakeTokenRepo) GetByHash(_ context.Context, hash string, kind domain.TokenType) (*domain.JwtToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[hash]
	if !ok || t.TokenType != kind {
		return nil, apperrors.ErrNotFound
	}
	return &t, nil
}

func (r fakeTokenRepo) Revoke(_ context.Context, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[hash]; ok {
		t.IsRevoked = true
		r.s.tokens[hash] = t
	}
	return nil
}

func (r fakeTokenRepo) RevokeByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.replaceLocked(userID, nil)
	return nil
}

func (r fakeTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for h, t := range r.s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.tokens, h)
			n++
		}
	}
	return n, nil
}

// --- Phone verifications ---

type fakeVerificationRepo struct{ s *memStore }

func (r fakeVerificationRepo) SupersedeUnverified(_ context.Context, phone string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, v := range r.s.verifications {
		if v.Phone == phone && !v.IsVerified {
			r.s.verifications[i].IsSuperseded = true
		}
	}
	return nil
}

func (r fakeVerificationRepo) Create(_ context.Context, v *domain.PhoneVerification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.verifications = append(r.s.verifications, *v)
	return nil
}

func (r fakeVerificationRepo) FindValidMatch(_ context.Context, phone, code string, now time.Time) (*domain.PhoneVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.verifications) - 1; i >= 0; i-- {
		v := r.s.verifications[i]
		if v.Phone == phone && v.VerificationCode == code && v.IsActionable(now) {
			return &v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r fakeVerificationRepo) MarkVerified(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, v := range r.s.verifications {
		if v.ID == id && v.IsActionable(now) {
			r.s.verifications[i].IsVerified = true
			return true, nil
		}
	}
	return false, nil
}

func (r fakeVerificationRepo) DeleteExpiredFor(_ context.Context, phone string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deleteVerifications(func(v domain.PhoneVerification) bool {
		return v.Phone == phone && !v.IsVerified && v.ExpiresAt.Before(now)
	})
	return nil
}

func (r fakeVerificationRepo) CountSince(_ context.Context, phone string, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, v := range r.s.verifications {
		if v.Phone == phone && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r fakeVerificationRepo) FindMostRecentVerified(_ context.Context, phone string) (*domain.PhoneVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.verifications) - 1; i >= 0; i-- {
		v := r.s.verifications[i]
		if v.Phone == phone && v.IsVerified {
			return &v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r fakeVerificationRepo) DeleteStale(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := r.s.deleteVerifications(func(v domain.PhoneVerification) bool {
		return !v.IsVerified && v.ExpiresAt.Before(now)
	})
	return int64(n), nil
}

func (s *memStore) deleteVerifications(match func(domain.PhoneVerification) bool) int {
	kept := s.verifications[:0]
	n := 0
	for _, v := range s.verifications {
		if match(v) {
			n++
			continue
		}
		kept = append(kept, v)
	}
	s.verifications = kept
	return n
}

// --- Mocks ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, phone, code string) error {
	args := m.Called(ctx, phone, code)
	return args.Error(0)
}

// recordingNotifier remembers the last code sent to each phone.
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *recordingNotifier) Send(_ context.Context, phone, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[phone] = code
	return nil
}

func (n *recordingNotifier) last(phone string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[phone]
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishUserRegistered(ctx context.Context, user *domain.User, provider domain.Provider) error {
	args := m.Called(ctx, user, provider)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishSocialLinked(ctx context.Context, userID string, provider domain.Provider) error {
	args := m.Called(ctx, userID, provider)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishUserDeactivated(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockThrottle struct {
	mock.Mock
}

func (m *mockThrottle) Allow(ctx context.Context, phone string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, phone, limit, window)
	return args.Bool(0), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEngine wires the real services over the in-memory store.
type testEngine struct {
	clock        *testClock
	store        *memStore
	notifier     *recordingNotifier
	events       *mockEventPublisher
	tokens       *TokenService
	verification *VerificationService
	identity     *IdentityService
	users        *UserService
}

func newTestEngine() *testEngine {
	clock := newTestClock()
	store := newMemStore(clock)
	logger := newTestLogger()

	codec := auth.NewCodec("access-secret-for-tests", "refresh-secret-for-tests", 15*time.Minute, 7*24*time.Hour).
		WithClock(clock.Now)
	pending := auth.NewPendingSigner([]byte("pending-key-for-tests-0123456789"), 10*time.Minute).
		WithClock(clock.Now)

	events := &mockEventPublisher{}
	events.On("PublishUserRegistered", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	events.On("PublishSocialLinked", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	events.On("PublishUserDeactivated", mock.Anything, mock.Anything).Return(nil).Maybe()

	notifier := &recordingNotifier{}

	tokens := NewTokenService(fakeTokenRepo{store}, fakeUserRepo{store}, codec, logger)
	tokens.nowFunc = clock.Now

	verification := NewVerificationService(fakeVerificationRepo{store}, nil, notifier, DefaultVerificationConfig(), logger)
	verification.nowFunc = clock.Now

	identity := NewIdentityService(fakeUserRepo{store}, fakeAccountRepo{store}, verification, tokens, pending, events, logger)
	identity.nowFunc = clock.Now

	users := NewUserService(fakeUserRepo{store}, fakeAccountRepo{store}, tokens, events, logger)
	users.nowFunc = clock.Now

	return &testEngine{
		clock:        clock,
		store:        store,
		notifier:     notifier,
		events:       events,
		tokens:       tokens,
		verification: verification,
		identity:     identity,
		users:        users,
	}
}

// seedUser stores an active user with the given phone.
func (e *testEngine) seedUser(id, phone string) *domain.User {
	u := domain.NewUser(id, phone, nil, e.clock.Now())
	e.store.mu.Lock()
	e.store.users[id] = *u
	e.store.mu.Unlock()
	return u
}

func strPtr(s string) *string { return &s }

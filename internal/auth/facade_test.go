package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/session"
	"github.com/leadcrm/leadcrm/internal/token"
)

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) ClearTenantData(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

type harness struct {
	facade  *Facade
	tokens  *token.Service
	store   *session.Store
	cleaner *mockCleaner
	now     time.Time
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	codec, err := token.NewCodec([]byte("facade-test-secret"))
	require.NoError(t, err)

	h := &harness{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), cleaner: &mockCleaner{}}
	h.tokens = token.NewService(codec, token.WithClock(func() time.Time { return h.now }))
	h.store = session.NewStore(session.NewMemoryStorage(), "tab-1")
	h.facade = NewFacade(h.tokens, h.store, zap.NewNop())
	h.facade.SetTenantCleaner(h.cleaner)
	return h
}

func (h *harness) login(t *testing.T, u *domain.User) domain.TokenPair {
	t.Helper()
	pair, err := h.tokens.IssueTokenPair(u)
	require.NoError(t, err)
	require.NoError(t, h.facade.Begin(context.Background(), pair))
	return pair
}

func alice() *domain.User {
	return &domain.User{
		ID: "user_a", Email: "alice@acme.com", FirstName: "Alice", LastName: "Smith",
		Role: domain.RoleTenantAdmin, TenantID: "tenant_a",
	}
}

func TestFacade_NoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.Nil(t, h.facade.CurrentUser(ctx))
	assert.False(t, h.facade.IsAuthenticated(ctx))
}

func TestFacade_CurrentUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	u := h.facade.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "user_a", u.ID)
	assert.Equal(t, "tenant_a", u.TenantID)
	assert.True(t, h.facade.IsAuthenticated(ctx))
}

func TestFacade_ExpiredTokenClearsWithoutRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	h.advance(24 * time.Hour)
	assert.Nil(t, h.facade.CurrentUser(ctx))

	access, _ := h.store.LoadAccess(ctx)
	refresh, _ := h.store.LoadRefresh(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh, "refresh token must not be used silently")
}

func TestFacade_GarbageTokenClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, "not-a-token", "also-not"))

	assert.Nil(t, h.facade.CurrentUser(ctx))
	access, _ := h.store.LoadAccess(ctx)
	assert.Empty(t, access)
}

func TestFacade_RefreshTokenStoredAsAccessIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, err := h.tokens.IssueTokenPair(alice())
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, pair.RefreshToken, ""))

	assert.Nil(t, h.facade.CurrentUser(ctx))
}

func TestFacade_EmptyTenantIsNotAuthenticated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Tokens without a tenant cannot be issued, so sign one directly.
	codec, err := token.NewCodec([]byte("facade-test-secret"))
	require.NoError(t, err)
	tok, err := codec.Encode(domain.SessionPayload{
		ID: "user_x", Email: "x@acme.com", Role: domain.RoleUser, Type: domain.TokenTypeAccess,
		IssuedAt: h.now.UnixMilli(), ExpiresAt: h.now.Add(time.Hour).UnixMilli(), TokenID: "jti-x",
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, tok, ""))

	assert.NotNil(t, h.facade.CurrentUser(ctx))
	assert.False(t, h.facade.IsAuthenticated(ctx))
}

func TestFacade_LogoutClearsSessionThenTenantCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	h.cleaner.On("ClearTenantData", mock.Anything, "tenant_a").Return(nil).Once()
	require.NoError(t, h.facade.Logout(ctx))

	h.cleaner.AssertExpectations(t)
	assert.Nil(t, h.facade.CurrentUser(ctx))
}

func TestFacade_LogoutWithoutSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.facade.Logout(context.Background()))
	require.NoError(t, h.facade.Logout(context.Background()))
	h.cleaner.AssertNotCalled(t, "ClearTenantData", mock.Anything, mock.Anything)
}

func TestFacade_LogoutReportsCleanerFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	h.cleaner.On("ClearTenantData", mock.Anything, "tenant_a").Return(errors.New("cache down"))
	err := h.facade.Logout(ctx)
	assert.Error(t, err)
	assert.Nil(t, h.facade.CurrentUser(ctx))
}

func TestFacade_Refresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.login(t, alice())

	h.advance(25 * time.Hour)
	access, err := h.facade.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, access)

	u := h.facade.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "user_a", u.ID)
	refresh, _ := h.store.LoadRefresh(ctx)
	assert.Equal(t, pair.RefreshToken, refresh)
}

func TestFacade_RefreshWithoutToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.facade.Refresh(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}

func TestFacade_RefreshExpiredClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	h.advance(8 * 24 * time.Hour)
	_, err := h.facade.Refresh(ctx)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
	refresh, _ := h.store.LoadRefresh(ctx)
	assert.Empty(t, refresh)
}

func TestFacade_Restore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, alice())

	require.NotNil(t, h.facade.Restore(ctx))

	h.advance(30 * time.Hour)
	u := h.facade.Restore(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "tenant_a", u.TenantID)

	h.advance(8 * 24 * time.Hour)
	assert.Nil(t, h.facade.Restore(ctx))
}

func TestContextIdentity(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ContextIdentity{}.CurrentUser(ctx))

	ctx = ContextWithUser(ctx, alice())
	u := ContextIdentity{}.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "user_a", u.ID)
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, h.Compare(hash, "s3cret-pass"))
	assert.False(t, h.Compare(hash, "wrong"))

	_, err = h.Hash("")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	assert.Equal(t, 10, NewHasher(0).Cost())
}

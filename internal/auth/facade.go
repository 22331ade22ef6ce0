// Package auth resolves "who is calling" from a stored session or from the
// request context.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/session"
	"github.com/leadcrm/leadcrm/internal/token"
)

// TenantCleaner drops cached tenant-scoped data on logout.
type TenantCleaner interface {
	ClearTenantData(ctx context.Context, tenantID string) error
}

// Facade combines the token service with one session slot. Identity reads
// never return errors; any verification failure ends the session.
type Facade struct {
	tokens   *token.Service
	sessions *session.Store
	cleaner  TenantCleaner
	logger   *zap.Logger
}

func NewFacade(tokens *token.Service, sessions *session.Store, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{tokens: tokens, sessions: sessions, logger: logger}
}

// SetTenantCleaner wires the data store after construction.
func (f *Facade) SetTenantCleaner(c TenantCleaner) {
	f.cleaner = c
}

// Begin stores a freshly issued pair in the session slot.
func (f *Facade) Begin(ctx context.Context, pair domain.TokenPair) error {
	return f.sessions.Save(ctx, pair.AccessToken, pair.RefreshToken)
}

// CurrentUser returns the user of the stored access token, or nil. It does
// not refresh; an expired token clears the session.
func (f *Facade) CurrentUser(ctx context.Context) *domain.User {
	u, err := f.current(ctx)
	if err != nil {
		f.logger.Debug("session dropped", zap.String("slot", f.sessions.Slot()), zap.Error(err))
		f.clear(ctx)
		return nil
	}
	return u
}

func (f *Facade) IsAuthenticated(ctx context.Context) bool {
	u := f.CurrentUser(ctx)
	return u != nil && u.TenantID != ""
}

// Logout ends the session and drops the previous user's tenant cache.
func (f *Facade) Logout(ctx context.Context) error {
	u := f.CurrentUser(ctx)
	err := f.sessions.Clear(ctx)
	if u != nil && u.TenantID != "" && f.cleaner != nil {
		if cerr := f.cleaner.ClearTenantData(ctx, u.TenantID); cerr != nil {
			err = errors.Join(err, fmt.Errorf("clear tenant data: %w", cerr))
		}
	}
	return err
}

// Refresh exchanges the stored refresh token for a new access token and
// stores it. Any failure clears the session.
func (f *Facade) Refresh(ctx context.Context) (string, error) {
	refresh, err := f.sessions.LoadRefresh(ctx)
	if err == nil && refresh == "" {
		err = fmt.Errorf("%w: no refresh token in session", domain.ErrUnauthenticated)
	}
	if err != nil {
		f.clear(ctx)
		return "", err
	}
	access, err := f.tokens.RefreshAccessToken(refresh)
	if err != nil {
		f.clear(ctx)
		return "", err
	}
	if err := f.sessions.Save(ctx, access, refresh); err != nil {
		return "", err
	}
	return access, nil
}

// Restore rehydrates a session: the current user if the access token is
// live, otherwise one refresh attempt.
func (f *Facade) Restore(ctx context.Context) *domain.User {
	if u, err := f.current(ctx); err == nil && u != nil {
		return u
	}
	if _, err := f.Refresh(ctx); err != nil {
		f.logger.Debug("session restore failed", zap.String("slot", f.sessions.Slot()), zap.Error(err))
		return nil
	}
	return f.CurrentUser(ctx)
}

func (f *Facade) current(ctx context.Context) (*domain.User, error) {
	access, err := f.sessions.LoadAccess(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, nil
	}
	p, err := f.tokens.Verify(access)
	if err != nil {
		return nil, err
	}
	if p.Type != domain.TokenTypeAccess {
		return nil, fmt.Errorf("%w: %s token stored as access token", domain.ErrWrongTokenType, p.Type)
	}
	return p.User(), nil
}

func (f *Facade) clear(ctx context.Context) {
	if err := f.sessions.Clear(ctx); err != nil {
		f.logger.Warn("failed to clear session", zap.String("slot", f.sessions.Slot()), zap.Error(err))
	}
}

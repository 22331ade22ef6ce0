package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/ids"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Service owns the lifecycle of access/refresh token pairs.
type Service struct {
	codec      *Codec
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(codec *Codec, opts ...Option) *Service {
	s := &Service{
		codec:      codec,
		now:        time.Now,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueTokenPair mints an access and a refresh token for user. Both carry
// the same identity claims and their own token id.
func (s *Service) IssueTokenPair(user *domain.User) (domain.TokenPair, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(user.TenantID) == "" {
		return domain.TokenPair{}, fmt.Errorf("%w: user %s has no tenant", domain.ErrValidation, user.ID)
	}
	now := s.now()
	access, accessExp, err := s.mint(user, domain.TokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshExp, err := s.mint(user, domain.TokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) mint(user *domain.User, typ domain.TokenType, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	tok, err := s.codec.Encode(domain.SessionPayload{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		TenantID:  user.TenantID,
		Type:      typ,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: exp.UnixMilli(),
		TokenID:   ids.ULID(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Verify decodes token and checks expiry. It fails only with ErrTokenExpired
// or ErrInvalidToken; malformed tokens are reported as invalid.
func (s *Service) Verify(token string) (domain.SessionPayload, error) {
	p, err := s.codec.Decode(token)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return domain.SessionPayload{}, err
		}
		return domain.SessionPayload{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if p.Expired(s.now()) {
		return domain.SessionPayload{}, domain.ErrTokenExpired
	}
	return p, nil
}

// RefreshAccessToken mints a new access token from a live refresh token,
// preserving the identity claims.
func (s *Service) RefreshAccessToken(refreshToken string) (string, error) {
	p, err := s.Verify(refreshToken)
	if err != nil {
		return "", err
	}
	if p.Type != domain.TokenTypeRefresh {
		return "", fmt.Errorf("%w: expected %s token, got %s", domain.ErrWrongTokenType, domain.TokenTypeRefresh, p.Type)
	}
	tok, _, err := s.mint(p.User(), domain.TokenTypeAccess, s.now(), s.accessTTL)
	return tok, err
}

// UserFromToken is the soft-fail projection used on hot paths: nil on any
// verification failure.
func (s *Service) UserFromToken(token string) *domain.User {
	p, err := s.Verify(token)
	if err != nil {
		return nil
	}
	return p.User()
}

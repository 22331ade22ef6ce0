package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/token"
)

type BusinessDetails struct {
	Industry string                  `json:"industry"`
	TaxID    string                  `json:"taxId"`
	Address  *domain.BusinessAddress `json:"address,omitempty"`
}

type RegisterTenantRequest struct {
	CompanyName     string               `json:"companyName"`
	Email           string               `json:"email"`
	Password        string               `json:"password"`
	FirstName       string               `json:"firstName"`
	LastName        string               `json:"lastName"`
	BusinessDetails *BusinessDetails     `json:"businessDetails,omitempty"`
	Subscription    *domain.Subscription `json:"subscription,omitempty"`
}

func (r RegisterTenantRequest) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"companyName", r.CompanyName},
		{"email", r.Email},
		{"password", r.Password},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Session is an authenticated user and the token pair issued for them.
type Session struct {
	User   *domain.User
	Tenant *domain.Tenant
	Tokens domain.TokenPair
}

// PasswordHasher is satisfied by *auth.Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// timingGuardPassword is hashed once so logins for unknown emails spend the
// same bcrypt work as logins with a wrong password.
const timingGuardPassword = "leadcrm-unknown-account"

// AuthService implements registration, login and token refresh.
type AuthService struct {
	data      *DataStore
	users     domain.UserStore
	tokens    *token.Service
	hasher    PasswordHasher
	dummyHash string
	logger    *zap.Logger
}

func NewAuthService(data *DataStore, users domain.UserStore, tokens *token.Service, hasher PasswordHasher, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := hasher.Hash(timingGuardPassword)
	if err != nil {
		logger.Warn("failed to prepare login timing guard", zap.Error(err))
	}
	return &AuthService{data: data, users: users, tokens: tokens, hasher: hasher, dummyHash: dummy, logger: logger}
}

func (s *AuthService) RegisterTenant(ctx context.Context, req RegisterTenantRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	reg := Registration{
		Tenant: TenantDraft{Name: req.CompanyName},
		Admin: UserDraft{
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
		},
	}
	if bd := req.BusinessDetails; bd != nil {
		reg.Tenant.Industry = bd.Industry
		reg.Tenant.TaxID = bd.TaxID
		reg.Profile.Address = bd.Address
	}
	if sub := req.Subscription; sub != nil {
		cp := *sub
		if cp.Tier == "" {
			cp.Tier = domain.TierStarter
		}
		if cp.Seats <= 0 {
			cp.Seats = 1
		}
		reg.Profile.Subscription = &cp
	}

	tenant, user, err := s.data.RegisterTenant(ctx, reg)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssueTokenPair(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Tenant: tenant, Tokens: pair}, nil
}

// Login checks credentials by exact email match. Every failure is reported
// as ErrInvalidCredentials, and every lookup runs one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.Compare(s.dummyHash, password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	matched := s.hasher.Compare(user.PasswordHash, password)
	if !matched || user.Status != domain.UserStatusActive {
		s.logger.Debug("login rejected", zap.String("user_id", user.ID))
		return nil, domain.ErrInvalidCredentials
	}
	pair, err := s.tokens.IssueTokenPair(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Tokens: pair}, nil
}

func (s *AuthService) Refresh(_ context.Context, refreshToken string) (string, error) {
	return s.tokens.RefreshAccessToken(refreshToken)
}

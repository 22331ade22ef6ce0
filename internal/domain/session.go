package domain

import "time"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// SessionPayload is the claim set carried by every issued token.
// IssuedAt and ExpiresAt are epoch milliseconds.
type SessionPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      Role      `json:"role"`
	TenantID  string    `json:"tenantId"`
	Type      TokenType `json:"type"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
	TokenID   string    `json:"jti"`
}

// Expired reports whether the payload is past its expiry at now.
func (p SessionPayload) Expired(now time.Time) bool {
	return now.UnixMilli() >= p.ExpiresAt
}

// User projects the identity claims onto a User. Timestamps come from iat.
func (p SessionPayload) User() *User {
	issued := time.UnixMilli(p.IssuedAt).UTC()
	return &User{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		TenantID:  p.TenantID,
		Status:    UserStatusActive,
		CreatedAt: issued,
		UpdatedAt: issued,
	}
}

// TokenPair is issued once per login or registration.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Package token issues and verifies the signed session tokens that carry a
// user's identity claims.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leadcrm/leadcrm/internal/domain"
)

var errMissingSecret = errors.New("token: signing secret is not configured")

// claims adapts SessionPayload to jwt.Claims. Registered-claim validation is
// disabled in the parser; expiry is checked by Service in milliseconds.
type claims struct {
	domain.SessionPayload
}

func (claims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (claims) GetIssuer() (string, error)                   { return "", nil }
func (claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
func (c claims) GetSubject() (string, error)                { return c.ID, nil }

// Codec maps a SessionPayload to and from an HS256-signed JWT.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errMissingSecret
	}
	return &Codec{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Encode signs the payload. The claims are exactly the payload fields.
func (c *Codec) Encode(p domain.SessionPayload) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{p}).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the payload. It fails with
// ErrInvalidToken when the signature or algorithm does not check out and
// with ErrMalformedToken when the token cannot be read back into a
// well-typed payload.
func (c *Codec) Decode(token string) (domain.SessionPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.SessionPayload{}, fmt.Errorf("%w: empty token", domain.ErrMalformedToken)
	}
	var cl claims
	parsed, err := c.parser.ParseWithClaims(token, &cl, c.key)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return domain.SessionPayload{}, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
		}
		return domain.SessionPayload{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return domain.SessionPayload{}, domain.ErrInvalidToken
	}
	if err := validateShape(cl.SessionPayload); err != nil {
		return domain.SessionPayload{}, err
	}
	return cl.SessionPayload, nil
}

// VerifySignature reports whether the token was signed with this codec's secret.
func (c *Codec) VerifySignature(token string) bool {
	_, err := c.parser.Parse(strings.TrimSpace(token), c.key)
	return err == nil
}

func (c *Codec) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.secret, nil
}

// validateShape checks required claims. An empty tenant id is allowed here;
// it is refused at issuance and by the auth facade.
func validateShape(p domain.SessionPayload) error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(p.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(p.TokenID) == "" {
		missing = append(missing, "jti")
	}
	if p.IssuedAt <= 0 {
		missing = append(missing, "iat")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrMalformedToken, strings.Join(missing, ", "))
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrMalformedToken, p.Role)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown token type %q", domain.ErrMalformedToken, p.Type)
	}
	if p.ExpiresAt <= p.IssuedAt {
		return fmt.Errorf("%w: exp must be after iat", domain.ErrMalformedToken)
	}
	return nil
}

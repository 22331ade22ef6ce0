package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/token"
)

// SessionCookie names the cookie holding a client's session slot.
const SessionCookie = "leadcrm_session"

// FacadeFactory returns the auth facade for a session slot.
type FacadeFactory func(slot string) *auth.Facade

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate resolves the caller from a bearer access token or, failing
// that, from the session cookie, and stores the user in the request
// context. Callers without a tenant are rejected.
func Authenticate(tokens *token.Service, facades FacadeFactory, metrics *Metrics) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, reason, msg string) {
		if metrics != nil {
			metrics.AuthFailure(reason)
		}
		writeError(w, http.StatusUnauthorized, msg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user *domain.User
			if raw := BearerToken(r); raw != "" {
				p, err := tokens.Verify(raw)
				switch {
				case errors.Is(err, domain.ErrTokenExpired):
					fail(w, "expired", "token expired")
					return
				case err != nil:
					fail(w, "invalid", "invalid token")
					return
				case p.Type != domain.TokenTypeAccess:
					fail(w, "wrong_type", "access token required")
					return
				}
				user = p.User()
			} else if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" && facades != nil {
				user = facades(c.Value).CurrentUser(r.Context())
				if user == nil {
					fail(w, "session", "session expired")
					return
				}
			} else {
				fail(w, "missing", "missing credentials")
				return
			}

			if user.TenantID == "" {
				fail(w, "no_tenant", "account is not attached to a tenant")
				return
			}

			annotate(r.Context(), user.TenantID, user.ID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}

package auth

import (
	"context"

	"github.com/leadcrm/leadcrm/internal/domain"
)

type userKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}

// ContextIdentity resolves the caller from the request context populated by
// the HTTP auth middleware.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) *domain.User {
	return UserFromContext(ctx)
}

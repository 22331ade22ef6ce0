package domain

import "context"

// TenantStore persists tenants. Registration creates a tenant and its
// first user as one unit so a duplicate email never leaves an orphan tenant.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Register(ctx context.Context, t *Tenant, admin *User, profile TenantProfile) error
	Profile(ctx context.Context, tenantID string) (TenantProfile, error)
}

// UserStore persists users. Create must reject an existing email atomically.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string, tenantID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]User, error)
}

// LeadStore persists leads. Every lookup is keyed by tenant as well as id.
// Save rewrites the lead row and appends notes and history not yet stored.
// It fails with ErrNotFound when the lead is not in the given tenant.
type LeadStore interface {
	Create(ctx context.Context, l *Lead) error
	GetByID(ctx context.Context, id string, tenantID string) (*Lead, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Lead, error)
	Save(ctx context.Context, l *Lead) error
	Delete(ctx context.Context, id string, tenantID string) error
}

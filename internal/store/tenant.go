package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadcrm/leadcrm/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	return mapErr("create tenant", insertTenant(ctx, s.db, t))
}

func (s *TenantStore) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, status, industry, tax_id, created_at, updated_at
		 FROM tenants WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Status, &t.Industry, &t.TaxID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapErr("get tenant", err)
	}
	return t, nil
}

// Register inserts the tenant, its profile and its first user in one
// transaction.
func (s *TenantStore) Register(ctx context.Context, t *domain.Tenant, admin *domain.User, profile domain.TenantProfile) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return mapErr("begin registration", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTenant(ctx, tx, t); err != nil {
		return mapErr("insert tenant", err)
	}
	if a := profile.Address; a != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tenant_addresses (tenant_id, street, street2, city, state, country, zip_code)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, a.Street, a.Street2, a.City, a.State, a.Country, a.ZipCode,
		); err != nil {
			return mapErr("insert tenant address", err)
		}
	}
	if sub := profile.Subscription; sub != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tenant_subscriptions (tenant_id, tier, seats) VALUES ($1, $2, $3)`,
			t.ID, sub.Tier, sub.Seats,
		); err != nil {
			return mapErr("insert subscription", err)
		}
	}
	if err := insertUser(ctx, tx, admin); err != nil {
		return mapErr("insert admin user", err)
	}
	return mapErr("commit registration", tx.Commit(ctx))
}

// Profile returns the registration details stored for a tenant.
func (s *TenantStore) Profile(ctx context.Context, tenantID string) (domain.TenantProfile, error) {
	var p domain.TenantProfile
	a := &domain.BusinessAddress{}
	err := s.db.QueryRow(ctx,
		`SELECT street, street2, city, state, country, zip_code
		 FROM tenant_addresses WHERE tenant_id = $1`,
		tenantID,
	).Scan(&a.Street, &a.Street2, &a.City, &a.State, &a.Country, &a.ZipCode)
	if err = mapErr("get tenant address", err); err == nil {
		p.Address = a
	} else if !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}
	sub := &domain.Subscription{}
	err = s.db.QueryRow(ctx,
		`SELECT tier, seats FROM tenant_subscriptions WHERE tenant_id = $1`,
		tenantID,
	).Scan(&sub.Tier, &sub.Seats)
	if err = mapErr("get subscription", err); err == nil {
		p.Subscription = sub
	} else if !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}
	return p, nil
}

func insertTenant(ctx context.Context, q querier, t *domain.Tenant) error {
	_, err := q.Exec(ctx,
		`INSERT INTO tenants (id, name, status, industry, tax_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.Status, t.Industry, t.TaxID, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

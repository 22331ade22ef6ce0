package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadcrm/leadcrm/internal/domain"
)

const userColumns = `id, tenant_id, email, password_hash, first_name, last_name, role, status, created_at, updated_at`

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

// Create relies on the unique email index, so concurrent inserts of the
// same email leave exactly one row.
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	return mapErr("create user", insertUser(ctx, s.db, u))
}

func (s *UserStore) GetByID(ctx context.Context, id, tenantID string) (*domain.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
}

func (s *UserStore) ListByTenant(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, mapErr("list users", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, mapErr("list users", rows.Err())
}

func insertUser(ctx context.Context, q querier, u *domain.User) error {
	_, err := q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.Status, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr("scan user", err)
	}
	return u, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadcrm/leadcrm/internal/domain"
)

const leadColumns = `id, tenant_id, first_name, last_name, email, phone,
	street, city, state, zip_code, status_id, created_at, updated_at`

type LeadStore struct {
	db *pgxpool.Pool
}

func NewLeadStore(db *pgxpool.Pool) *LeadStore {
	return &LeadStore{db: db}
}

func (s *LeadStore) Create(ctx context.Context, l *domain.Lead) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return mapErr("begin create lead", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.TenantID, l.FirstName, l.LastName, l.Email, l.Phone,
		l.Address.Street, l.Address.City, l.Address.State, l.Address.ZipCode,
		l.Status.ID, l.CreatedAt, l.UpdatedAt,
	); err != nil {
		return mapErr("insert lead", err)
	}
	if err := appendChildren(ctx, tx, l); err != nil {
		return err
	}
	return mapErr("commit create lead", tx.Commit(ctx))
}

func (s *LeadStore) GetByID(ctx context.Context, id, tenantID string) (*domain.Lead, error) {
	l, err := scanLead(s.db.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
	if err != nil {
		return nil, err
	}
	byID := map[string]*domain.Lead{l.ID: l}
	if err := loadChildren(ctx, s.db, byID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LeadStore) ListByTenant(ctx context.Context, tenantID string) ([]domain.Lead, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, mapErr("list leads", err)
	}
	var leads []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		leads = append(leads, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapErr("list leads", err)
	}

	byID := make(map[string]*domain.Lead, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
	}
	if err := loadChildren(ctx, s.db, byID); err != nil {
		return nil, err
	}
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		out = append(out, *l)
	}
	return out, nil
}

func (s *LeadStore) Save(ctx context.Context, l *domain.Lead) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return mapErr("begin save lead", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET first_name = $3, last_name = $4, email = $5, phone = $6,
		   street = $7, city = $8, state = $9, zip_code = $10, status_id = $11, updated_at = $12
		 WHERE id = $1 AND tenant_id = $2`,
		l.ID, l.TenantID, l.FirstName, l.LastName, l.Email, l.Phone,
		l.Address.Street, l.Address.City, l.Address.State, l.Address.ZipCode,
		l.Status.ID, l.UpdatedAt,
	)
	if err != nil {
		return mapErr("update lead", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if err := appendChildren(ctx, tx, l); err != nil {
		return err
	}
	return mapErr("commit save lead", tx.Commit(ctx))
}

func (s *LeadStore) Delete(ctx context.Context, id, tenantID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM leads WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return mapErr("delete lead", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// appendChildren inserts notes and history entries. Entries already stored
// are skipped, so rows are never rewritten.
func appendChildren(ctx context.Context, tx pgx.Tx, l *domain.Lead) error {
	batch := &pgx.Batch{}
	for _, n := range l.Notes {
		batch.Queue(
			`INSERT INTO lead_notes (id, lead_id, content, created_at, created_by_id, created_by_name)
			 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			n.ID, l.ID, n.Content, n.CreatedAt, n.CreatedBy.ID, n.CreatedBy.Name,
		)
	}
	for _, h := range l.History {
		batch.Queue(
			`INSERT INTO lead_history (id, lead_id, action, field, old_value, new_value,
			   performed_at, performed_by_id, performed_by_name)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO NOTHING`,
			h.ID, l.ID, h.Action, h.Field, h.OldValue, h.NewValue,
			h.Timestamp, h.PerformedBy.ID, h.PerformedBy.Name,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapErr("append lead children", err)
	}
	return nil
}

func loadChildren(ctx context.Context, q querier, byID map[string]*domain.Lead) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id, l := range byID {
		ids = append(ids, id)
		l.Notes = []domain.Note{}
		l.History = []domain.HistoryEntry{}
	}

	rows, err := q.Query(ctx,
		`SELECT lead_id, id, content, created_at, created_by_id, created_by_name
		 FROM lead_notes WHERE lead_id = ANY($1) ORDER BY seq`,
		ids,
	)
	if err != nil {
		return mapErr("load notes", err)
	}
	for rows.Next() {
		var leadID string
		var n domain.Note
		if err := rows.Scan(&leadID, &n.ID, &n.Content, &n.CreatedAt, &n.CreatedBy.ID, &n.CreatedBy.Name); err != nil {
			rows.Close()
			return mapErr("scan note", err)
		}
		byID[leadID].Notes = append(byID[leadID].Notes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapErr("load notes", err)
	}

	rows, err = q.Query(ctx,
		`SELECT lead_id, id, action, field, old_value, new_value,
		   performed_at, performed_by_id, performed_by_name
		 FROM lead_history WHERE lead_id = ANY($1) ORDER BY seq`,
		ids,
	)
	if err != nil {
		return mapErr("load history", err)
	}
	defer rows.Close()
	for rows.Next() {
		var leadID string
		var h domain.HistoryEntry
		if err := rows.Scan(&leadID, &h.ID, &h.Action, &h.Field, &h.OldValue, &h.NewValue,
			&h.Timestamp, &h.PerformedBy.ID, &h.PerformedBy.Name); err != nil {
			return mapErr("scan history", err)
		}
		byID[leadID].History = append(byID[leadID].History, h)
	}
	return mapErr("load history", rows.Err())
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	l := &domain.Lead{}
	var statusID string
	err := row.Scan(&l.ID, &l.TenantID, &l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.Address.Street, &l.Address.City, &l.Address.State, &l.Address.ZipCode,
		&statusID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, mapErr("scan lead", err)
	}
	status, ok := domain.StatusByID(statusID)
	if !ok {
		return nil, fmt.Errorf("%w: lead %s has unknown status %q", domain.ErrPersistence, l.ID, statusID)
	}
	l.Status = status
	return l, nil
}

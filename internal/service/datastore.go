package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/ids"
)

// Identity resolves the user on whose behalf a call is made.
type Identity interface {
	CurrentUser(ctx context.Context) *domain.User
}

type TenantDraft struct {
	Name     string
	Industry string
	TaxID    string
}

type UserDraft struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         domain.Role
	TenantID     string
}

// Registration is a new tenant together with its first administrator.
type Registration struct {
	Tenant  TenantDraft
	Admin   UserDraft
	Profile domain.TenantProfile
}

// DataStore is the tenant-scoped entry point for CRM data. Every lead and
// user operation is bound to the tenant of the current identity; a record in
// another tenant is reported as not found.
type DataStore struct {
	tenants  domain.TenantStore
	users    domain.UserStore
	leads    domain.LeadStore
	identity Identity
	cache    *LeadCache
	logger   *zap.Logger
	now      func() time.Time
}

type DataStoreOption func(*DataStore)

func WithDataStoreClock(fn func() time.Time) DataStoreOption {
	return func(d *DataStore) {
		if fn != nil {
			d.now = fn
		}
	}
}

// NewDataStore wires the data store. cache may be nil.
func NewDataStore(tenants domain.TenantStore, users domain.UserStore, leads domain.LeadStore, identity Identity, cache *LeadCache, logger *zap.Logger, opts ...DataStoreOption) *DataStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DataStore{
		tenants:  tenants,
		users:    users,
		leads:    leads,
		identity: identity,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DataStore) currentUser(ctx context.Context) (*domain.User, error) {
	u := d.identity.CurrentUser(ctx)
	if u == nil || u.TenantID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return u, nil
}

func (d *DataStore) CreateTenant(ctx context.Context, draft TenantDraft) (*domain.Tenant, error) {
	t, err := newTenant(draft, d.now())
	if err != nil {
		return nil, err
	}
	if err := d.tenants.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateUser inserts a user into an existing tenant. Emails are unique
// across tenants and compared exactly.
func (d *DataStore) CreateUser(ctx context.Context, draft UserDraft) (*domain.User, error) {
	u, err := newUser(draft, d.now())
	if err != nil {
		return nil, err
	}
	if _, err := d.tenants.GetByID(ctx, u.TenantID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: tenant %s does not exist", domain.ErrValidation, u.TenantID)
		}
		return nil, err
	}
	if err := d.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RegisterTenant creates a tenant and its first user, always a
// TENANT_ADMIN, as one unit.
func (d *DataStore) RegisterTenant(ctx context.Context, reg Registration) (*domain.Tenant, *domain.User, error) {
	now := d.now()
	t, err := newTenant(reg.Tenant, now)
	if err != nil {
		return nil, nil, err
	}
	reg.Admin.TenantID = t.ID
	reg.Admin.Role = domain.RoleTenantAdmin
	admin, err := newUser(reg.Admin, now)
	if err != nil {
		return nil, nil, err
	}
	if sub := reg.Profile.Subscription; sub != nil && !sub.Tier.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown subscription tier %q", domain.ErrValidation, sub.Tier)
	}
	if err := d.tenants.Register(ctx, t, admin, reg.Profile); err != nil {
		return nil, nil, err
	}
	d.logger.Info("tenant registered", zap.String("tenant_id", t.ID), zap.String("user_id", admin.ID))
	return t, admin, nil
}

// AddTenantUser creates a user in the caller's tenant. The caller needs the
// manage_users permission.
func (d *DataStore) AddTenantUser(ctx context.Context, draft UserDraft) (*domain.User, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.Role.Can(domain.PermManageUsers) {
		return nil, fmt.Errorf("%w: %s cannot manage users", domain.ErrForbidden, caller.Role)
	}
	if draft.TenantID != "" && draft.TenantID != caller.TenantID {
		return nil, fmt.Errorf("%w: cannot add users to another tenant", domain.ErrForbidden)
	}
	draft.TenantID = caller.TenantID
	return d.CreateUser(ctx, draft)
}

func (d *DataStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return d.users.ListByTenant(ctx, caller.TenantID)
}

// CurrentTenant returns the caller's tenant and its registration profile.
func (d *DataStore) CurrentTenant(ctx context.Context) (*domain.Tenant, domain.TenantProfile, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, domain.TenantProfile{}, err
	}
	t, err := d.tenants.GetByID(ctx, caller.TenantID)
	if err != nil {
		return nil, domain.TenantProfile{}, err
	}
	profile, err := d.tenants.Profile(ctx, caller.TenantID)
	if err != nil {
		return nil, domain.TenantProfile{}, err
	}
	return t, profile, nil
}

// AddLead creates a lead in tenantID, which must be the caller's tenant. An
// empty tenantID means the caller's tenant.
func (d *DataStore) AddLead(ctx context.Context, tenantID string, draft domain.LeadDraft) (*domain.Lead, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if tenantID == "" {
		tenantID = caller.TenantID
	}
	if tenantID != caller.TenantID {
		return nil, fmt.Errorf("%w: cannot add leads to another tenant", domain.ErrForbidden)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := d.now().UTC()
	l := &domain.Lead{
		ID:        ids.New("lead"),
		TenantID:  tenantID,
		FirstName: strings.TrimSpace(draft.FirstName),
		LastName:  strings.TrimSpace(draft.LastName),
		Email:     strings.TrimSpace(draft.Email),
		Phone:     strings.TrimSpace(draft.Phone),
		Address:   draft.Address,
		Status:    domain.DefaultStatus(),
		Notes:     []domain.Note{},
		History: []domain.HistoryEntry{{
			ID:          ids.New("hist"),
			Action:      domain.HistoryCreated,
			Timestamp:   now,
			PerformedBy: caller.Actor(),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.leads.Create(ctx, l); err != nil {
		return nil, err
	}
	d.invalidate(ctx, tenantID)
	return l, nil
}

func (d *DataStore) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return d.leads.GetByID(ctx, id, caller.TenantID)
}

// ListLeads returns the caller's leads, served from the cache when warm.
func (d *DataStore) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var (
		gen       string
		cacheable bool
	)
	if d.cache != nil {
		if leads, ok := d.cache.Get(ctx, caller.TenantID); ok {
			return leads, nil
		}
		gen, cacheable = d.cache.Generation(ctx, caller.TenantID)
	}
	leads, err := d.leads.ListByTenant(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		d.cache.Put(ctx, caller.TenantID, gen, leads)
	}
	return leads, nil
}

// UpdateLead applies changes and appends one history entry per changed
// field. A changeset that changes nothing leaves the lead untouched.
func (d *DataStore) UpdateLead(ctx context.Context, id string, changes domain.LeadChanges) (*domain.Lead, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	l, err := d.leads.GetByID(ctx, id, caller.TenantID)
	if err != nil {
		return nil, err
	}
	diff, err := changes.Diff(l)
	if err != nil {
		return nil, err
	}
	if len(diff) == 0 {
		return l, nil
	}
	next := l.Clone()
	changes.Apply(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	now := d.now().UTC()
	actor := caller.Actor()
	for _, c := range diff {
		action := domain.HistoryUpdated
		if c.Status {
			action = domain.HistoryStatusChanged
		}
		l.History = append(l.History, domain.HistoryEntry{
			ID:          ids.New("hist"),
			Action:      action,
			Field:       c.Field,
			OldValue:    c.OldValue,
			NewValue:    c.NewValue,
			Timestamp:   now,
			PerformedBy: actor,
		})
	}
	changes.Apply(l)
	l.UpdatedAt = now
	if err := d.leads.Save(ctx, l); err != nil {
		return nil, err
	}
	d.invalidate(ctx, caller.TenantID)
	return l, nil
}

func (d *DataStore) AddNote(ctx context.Context, id, content string) (*domain.Lead, error) {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: note content is required", domain.ErrValidation)
	}
	l, err := d.leads.GetByID(ctx, id, caller.TenantID)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	actor := caller.Actor()
	l.Notes = append(l.Notes, domain.Note{
		ID:        ids.New("note"),
		Content:   content,
		CreatedAt: now,
		CreatedBy: actor,
	})
	l.History = append(l.History, domain.HistoryEntry{
		ID:          ids.New("hist"),
		Action:      domain.HistoryNoteAdded,
		Timestamp:   now,
		PerformedBy: actor,
	})
	l.UpdatedAt = now
	if err := d.leads.Save(ctx, l); err != nil {
		return nil, err
	}
	d.invalidate(ctx, caller.TenantID)
	return l, nil
}

// DeleteLead removes a lead of the caller's tenant. Deleting a missing or
// foreign lead fails with ErrNotFound and changes nothing.
func (d *DataStore) DeleteLead(ctx context.Context, id string) error {
	caller, err := d.currentUser(ctx)
	if err != nil {
		return err
	}
	if err := d.leads.Delete(ctx, id, caller.TenantID); err != nil {
		return err
	}
	d.invalidate(ctx, caller.TenantID)
	return nil
}

// ClearTenantData drops cached data for tenantID. Stored records are kept.
func (d *DataStore) ClearTenantData(ctx context.Context, tenantID string) error {
	if d.cache == nil || tenantID == "" {
		return nil
	}
	return d.cache.Invalidate(ctx, tenantID)
}

func (d *DataStore) invalidate(ctx context.Context, tenantID string) {
	if err := d.ClearTenantData(ctx, tenantID); err != nil {
		d.logger.Warn("lead cache invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

func newTenant(draft TenantDraft, now time.Time) (*domain.Tenant, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", domain.ErrValidation)
	}
	now = now.UTC()
	return &domain.Tenant{
		ID:        ids.New("tenant"),
		Name:      name,
		Status:    domain.TenantStatusActive,
		Industry:  strings.TrimSpace(draft.Industry),
		TaxID:     strings.TrimSpace(draft.TaxID),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func newUser(draft UserDraft, now time.Time) (*domain.User, error) {
	var missing []string
	if strings.TrimSpace(draft.Email) == "" {
		missing = append(missing, "email")
	}
	if draft.PasswordHash == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(draft.TenantID) == "" {
		missing = append(missing, "tenantId")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	role := draft.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	now = now.UTC()
	return &domain.User{
		ID:           ids.New("user"),
		Email:        strings.TrimSpace(draft.Email),
		PasswordHash: draft.PasswordHash,
		FirstName:    strings.TrimSpace(draft.FirstName),
		LastName:     strings.TrimSpace(draft.LastName),
		Role:         role,
		TenantID:     draft.TenantID,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

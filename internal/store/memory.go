package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leadcrm/leadcrm/internal/domain"
)

// Memory is an in-process backend. All three entity stores share one lock,
// so registration and the email check-then-insert are atomic.
type Memory struct {
	mu       sync.RWMutex
	tenants  map[string]domain.Tenant
	profiles map[string]domain.TenantProfile
	users    map[string]domain.User
	emails   map[string]string
	leads    map[string]*domain.Lead
}

func NewMemory() *Memory {
	return &Memory{
		tenants:  make(map[string]domain.Tenant),
		profiles: make(map[string]domain.TenantProfile),
		users:    make(map[string]domain.User),
		emails:   make(map[string]string),
		leads:    make(map[string]*domain.Lead),
	}
}

func (m *Memory) Tenants() *MemoryTenantStore { return &MemoryTenantStore{m} }
func (m *Memory) Users() *MemoryUserStore     { return &MemoryUserStore{m} }
func (m *Memory) Leads() *MemoryLeadStore     { return &MemoryLeadStore{m} }

type MemoryTenantStore struct{ m *Memory }

func (s *MemoryTenantStore) Create(_ context.Context, t *domain.Tenant) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.insertTenant(t)
}

func (s *MemoryTenantStore) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	t, ok := s.m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *MemoryTenantStore) Register(_ context.Context, t *domain.Tenant, admin *domain.User, profile domain.TenantProfile) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, taken := s.m.emails[admin.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	if err := s.m.insertTenant(t); err != nil {
		return err
	}
	s.m.profiles[t.ID] = copyProfile(profile)
	return s.m.insertUser(admin)
}

func (s *MemoryTenantStore) Profile(_ context.Context, tenantID string) (domain.TenantProfile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return copyProfile(s.m.profiles[tenantID]), nil
}

type MemoryUserStore struct{ m *Memory }

func (s *MemoryUserStore) Create(_ context.Context, u *domain.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.insertUser(u)
}

func (s *MemoryUserStore) GetByID(_ context.Context, id, tenantID string) (*domain.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	id, ok := s.m.emails[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := s.m.users[id]
	return &u, nil
}

func (s *MemoryUserStore) ListByTenant(_ context.Context, tenantID string) ([]domain.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []domain.User
	for _, u := range s.m.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type MemoryLeadStore struct{ m *Memory }

func (s *MemoryLeadStore) Create(_ context.Context, l *domain.Lead) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tenants[l.TenantID]; !ok {
		return fmt.Errorf("%w: tenant %s does not exist", domain.ErrPersistence, l.TenantID)
	}
	if _, ok := s.m.leads[l.ID]; ok {
		return fmt.Errorf("%w: lead %s already exists", domain.ErrPersistence, l.ID)
	}
	s.m.leads[l.ID] = l.Clone()
	return nil
}

func (s *MemoryLeadStore) GetByID(_ context.Context, id, tenantID string) (*domain.Lead, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	l, ok := s.m.leads[id]
	if !ok || l.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryLeadStore) ListByTenant(_ context.Context, tenantID string) ([]domain.Lead, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []domain.Lead{}
	for _, l := range s.m.leads {
		if l.TenantID == tenantID {
			out = append(out, *l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryLeadStore) Save(_ context.Context, l *domain.Lead) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.leads[l.ID]
	if !ok || cur.TenantID != l.TenantID {
		return domain.ErrNotFound
	}
	next := l.Clone()
	next.CreatedAt = cur.CreatedAt
	next.Notes = appendNew(cur.Notes, next.Notes, func(n domain.Note) string { return n.ID })
	next.History = appendNew(cur.History, next.History, func(h domain.HistoryEntry) string { return h.ID })
	s.m.leads[l.ID] = next
	return nil
}

func (s *MemoryLeadStore) Delete(_ context.Context, id, tenantID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	l, ok := s.m.leads[id]
	if !ok || l.TenantID != tenantID {
		return domain.ErrNotFound
	}
	delete(s.m.leads, id)
	return nil
}

func (m *Memory) insertTenant(t *domain.Tenant) error {
	if _, ok := m.tenants[t.ID]; ok {
		return fmt.Errorf("%w: tenant %s already exists", domain.ErrPersistence, t.ID)
	}
	m.tenants[t.ID] = *t
	return nil
}

// insertUser must be called with mu held.
func (m *Memory) insertUser(u *domain.User) error {
	if _, taken := m.emails[u.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	if _, ok := m.tenants[u.TenantID]; !ok {
		return fmt.Errorf("%w: tenant %s does not exist", domain.ErrPersistence, u.TenantID)
	}
	m.users[u.ID] = *u
	m.emails[u.Email] = u.ID
	return nil
}

// appendNew keeps stored entries as they are and appends unseen ones, the
// same shape as the ON CONFLICT DO NOTHING inserts in LeadStore.
func appendNew[T any](stored, incoming []T, id func(T) string) []T {
	seen := make(map[string]struct{}, len(stored))
	out := append(make([]T, 0, len(incoming)), stored...)
	for _, e := range stored {
		seen[id(e)] = struct{}{}
	}
	for _, e := range incoming {
		if _, ok := seen[id(e)]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func copyProfile(p domain.TenantProfile) domain.TenantProfile {
	out := domain.TenantProfile{}
	if p.Address != nil {
		a := *p.Address
		out.Address = &a
	}
	if p.Subscription != nil {
		sub := *p.Subscription
		out.Subscription = &sub
	}
	return out
}

var (
	_ domain.TenantStore = (*MemoryTenantStore)(nil)
	_ domain.UserStore   = (*MemoryUserStore)(nil)
	_ domain.LeadStore   = (*MemoryLeadStore)(nil)
	_ domain.TenantStore = (*TenantStore)(nil)
	_ domain.UserStore   = (*UserStore)(nil)
	_ domain.LeadStore   = (*LeadStore)(nil)
)

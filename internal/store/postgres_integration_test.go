//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/ids"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func registerTenant(t *testing.T, pool *pgxpool.Pool) (*domain.Tenant, *domain.User) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	tenant := &domain.Tenant{ID: ids.New("tenant"), Name: "Acme", Status: domain.TenantStatusActive, CreatedAt: now, UpdatedAt: now}
	admin := &domain.User{
		ID: ids.New("user"), TenantID: tenant.ID, Email: ids.New("admin") + "@acme.test",
		PasswordHash: "x", Role: domain.RoleTenantAdmin, Status: domain.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, NewTenantStore(pool).Register(context.Background(), tenant, admin, domain.TenantProfile{
		Subscription: &domain.Subscription{Tier: domain.TierStarter, Seats: 1},
	}))
	return tenant, admin
}

func TestPostgres_RegisterDuplicateLeavesNoTenant(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	_, admin := registerTenant(t, pool)

	now := time.Now().UTC()
	orphan := &domain.Tenant{ID: ids.New("tenant"), Name: "Dup", Status: domain.TenantStatusActive, CreatedAt: now, UpdatedAt: now}
	dup := *admin
	dup.ID = ids.New("user")
	dup.TenantID = orphan.ID
	err := NewTenantStore(pool).Register(ctx, orphan, &dup, domain.TenantProfile{})
	assert.True(t, errors.Is(err, domain.ErrDuplicateEmail), "got %v", err)

	_, err = NewTenantStore(pool).GetByID(ctx, orphan.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPostgres_ConcurrentDuplicateEmail(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	tenant, _ := registerTenant(t, pool)
	users := NewUserStore(pool)
	email := ids.New("race") + "@acme.test"

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			err := users.Create(ctx, &domain.User{
				ID: ids.New("user"), TenantID: tenant.ID, Email: email, PasswordHash: "x",
				Role: domain.RoleUser, Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now,
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestPostgres_LeadLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	tenant, admin := registerTenant(t, pool)
	other, _ := registerTenant(t, pool)
	leads := NewLeadStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	l := &domain.Lead{
		ID: ids.New("lead"), TenantID: tenant.ID, FirstName: "Bob", Email: "bob@example.com",
		Status: domain.DefaultStatus(), CreatedAt: now, UpdatedAt: now,
		History: []domain.HistoryEntry{{ID: ids.New("hist"), Action: domain.HistoryCreated, Timestamp: now, PerformedBy: admin.Actor()}},
	}
	require.NoError(t, leads.Create(ctx, l))

	_, err := leads.GetByID(ctx, l.ID, other.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	l.Status, _ = domain.StatusByID("status_2")
	l.Notes = append(l.Notes, domain.Note{ID: ids.New("note"), Content: "called", CreatedAt: now, CreatedBy: admin.Actor()})
	l.History = append(l.History, domain.HistoryEntry{
		ID: ids.New("hist"), Action: domain.HistoryStatusChanged, Field: "status",
		OldValue: "New", NewValue: "Contacted", Timestamp: now, PerformedBy: admin.Actor(),
	})
	require.NoError(t, leads.Save(ctx, l))

	got, err := leads.GetByID(ctx, l.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contacted", got.Status.Name)
	require.Len(t, got.History, 2)
	assert.Equal(t, domain.HistoryStatusChanged, got.History[1].Action)
	require.Len(t, got.Notes, 1)

	list, err := leads.ListByTenant(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.True(t, errors.Is(leads.Delete(ctx, l.ID, other.ID), domain.ErrNotFound))
	require.NoError(t, leads.Delete(ctx, l.ID, tenant.ID))
	assert.True(t, errors.Is(leads.Delete(ctx, l.ID, tenant.ID), domain.ErrNotFound))
}

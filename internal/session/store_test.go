package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			s := NewStore(storage, "browser-1")

			access, err := s.LoadAccess(ctx)
			require.NoError(t, err)
			assert.Empty(t, access)

			require.NoError(t, s.Save(ctx, "a1", "r1"))
			access, err = s.LoadAccess(ctx)
			require.NoError(t, err)
			refresh, err := s.LoadRefresh(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a1", access)
			assert.Equal(t, "r1", refresh)

			require.NoError(t, s.Save(ctx, "a2", "r2"))
			access, _ = s.LoadAccess(ctx)
			assert.Equal(t, "a2", access)

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx))
			access, _ = s.LoadAccess(ctx)
			refresh, _ = s.LoadRefresh(ctx)
			assert.Empty(t, access)
			assert.Empty(t, refresh)
			meta, err := s.LoadMeta(ctx)
			require.NoError(t, err)
			assert.Nil(t, meta)
		})
	}
}

func TestStore_SaveWithoutRefreshDropsStaleRefresh(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryStorage(), "slot")

	require.NoError(t, s.Save(ctx, "a1", "r1"))
	require.NoError(t, s.Save(ctx, "a2", ""))

	refresh, err := s.LoadRefresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, refresh)
	meta, err := s.LoadMeta(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.HasRefresh)
}

func TestStore_RequiresAccessToken(t *testing.T) {
	s := NewStore(NewMemoryStorage(), "slot")
	assert.Error(t, s.Save(context.Background(), "", "r"))
}

func TestStore_SlotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	a := NewStore(storage, "a")
	b := NewStore(storage, "b")

	require.NoError(t, a.Save(ctx, "token-a", ""))
	require.NoError(t, b.Clear(ctx))

	v, err := a.LoadAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-a", v)
}

func TestStore_MetaRecordsSaveTime(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryStorage(), "slot")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	require.NoError(t, s.Save(ctx, "a", "r"))
	meta, err := s.LoadMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, at, meta.SavedAt)
	assert.True(t, meta.HasRefresh)
}

type failingStorage struct{ Storage }

func (failingStorage) Get(context.Context, string) (string, error) {
	return "", errors.New("storage offline")
}

func TestStore_LoadSurfacesStorageErrors(t *testing.T) {
	s := NewStore(failingStorage{NewMemoryStorage()}, "slot")
	_, err := s.LoadAccess(context.Background())
	assert.Error(t, err)
}

// ttlRecorder captures the ttl of every write.
type ttlRecorder struct {
	Storage
	ttls map[string]time.Duration
}

func (r *ttlRecorder) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.ttls[key] = ttl
	return r.Storage.Set(ctx, key, value, ttl)
}

func TestStore_SlotsExpire(t *testing.T) {
	ctx := context.Background()

	t.Run("default ttl", func(t *testing.T) {
		rec := &ttlRecorder{Storage: NewMemoryStorage(), ttls: map[string]time.Duration{}}
		for i := 0; i < 5; i++ {
			require.NoError(t, NewStore(rec, fmt.Sprintf("slot-%d", i)).Save(ctx, "access", "refresh"))
		}
		require.Len(t, rec.ttls, 15)
		for key, ttl := range rec.ttls {
			assert.Equal(t, DefaultTTL, ttl, key)
		}
	})

	t.Run("configured ttl", func(t *testing.T) {
		rec := &ttlRecorder{Storage: NewMemoryStorage(), ttls: map[string]time.Duration{}}
		require.NoError(t, NewStore(rec, "slot", WithTTL(time.Hour), WithTTL(0)).Save(ctx, "access", "refresh"))
		for key, ttl := range rec.ttls {
			assert.Equal(t, time.Hour, ttl, key)
		}
	})

	t.Run("abandoned slot disappears", func(t *testing.T) {
		storage := NewMemoryStorage()
		now := time.Now()
		storage.now = func() time.Time { return now }
		s := NewStore(storage, "slot", WithTTL(time.Hour))
		require.NoError(t, s.Save(ctx, "access", "refresh"))

		now = now.Add(time.Hour)
		access, err := s.LoadAccess(ctx)
		require.NoError(t, err)
		assert.Empty(t, access)
		refresh, err := s.LoadRefresh(ctx)
		require.NoError(t, err)
		assert.Empty(t, refresh)
	})
}

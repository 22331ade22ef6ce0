package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL bounds how long an abandoned slot survives. It matches the
// default refresh token lifetime.
const DefaultTTL = 7 * 24 * time.Hour

const (
	accessKey  = "auth_token"
	refreshKey = "refresh_token"
	metaKey    = "auth_meta"
)

// Meta is the bookkeeping record written next to the tokens.
type Meta struct {
	SavedAt    time.Time `json:"savedAt"`
	HasRefresh bool      `json:"hasRefresh"`
}

// Store holds the token pair of one session slot.
type Store struct {
	storage Storage
	slot    string
	ttl     time.Duration
	now     func() time.Time
}

type StoreOption func(*Store)

// WithTTL sets the lifetime given to every key on Save. Non-positive values
// are ignored; slots always expire.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewStore(storage Storage, slot string, opts ...StoreOption) *Store {
	s := &Store{storage: storage, slot: slot, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Slot() string { return s.slot }

func (s *Store) key(name string) string {
	if s.slot == "" {
		return name
	}
	return s.slot + ":" + name
}

// Save overwrites the stored tokens. An empty refresh token removes any
// refresh token left from an earlier save. Every key is written with the
// store's ttl, so a slot nobody logs out of still expires.
func (s *Store) Save(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.New("session: access token is required")
	}
	if err := s.storage.Set(ctx, s.key(accessKey), accessToken, s.ttl); err != nil {
		return fmt.Errorf("session: save access token: %w", err)
	}
	if refreshToken != "" {
		if err := s.storage.Set(ctx, s.key(refreshKey), refreshToken, s.ttl); err != nil {
			return fmt.Errorf("session: save refresh token: %w", err)
		}
	} else if err := s.storage.Remove(ctx, s.key(refreshKey)); err != nil {
		return fmt.Errorf("session: drop refresh token: %w", err)
	}
	meta, err := json.Marshal(Meta{SavedAt: s.now().UTC(), HasRefresh: refreshToken != ""})
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, s.key(metaKey), string(meta), s.ttl); err != nil {
		return fmt.Errorf("session: save meta: %w", err)
	}
	return nil
}

func (s *Store) LoadAccess(ctx context.Context) (string, error) {
	return s.load(ctx, accessKey)
}

func (s *Store) LoadRefresh(ctx context.Context) (string, error) {
	return s.load(ctx, refreshKey)
}

// LoadMeta returns nil when nothing has been saved.
func (s *Store) LoadMeta(ctx context.Context) (*Meta, error) {
	raw, err := s.load(ctx, metaKey)
	if err != nil || raw == "" {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("session: decode meta: %w", err)
	}
	return &m, nil
}

func (s *Store) load(ctx context.Context, name string) (string, error) {
	v, err := s.storage.Get(ctx, s.key(name))
	if errors.Is(err, ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load %s: %w", name, err)
	}
	return v, nil
}

// Clear removes the tokens and metadata. Clearing an empty slot is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, name := range []string{accessKey, refreshKey, metaKey} {
		if err := s.storage.Remove(ctx, s.key(name)); err != nil && !errors.Is(err, ErrMiss) {
			errs = append(errs, fmt.Errorf("session: clear %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

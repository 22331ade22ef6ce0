package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/ids"
	"github.com/leadcrm/leadcrm/internal/session"
)

const DefaultLeadCacheTTL = 5 * time.Minute

// LeadCache keeps each tenant's lead list as JSON in a cache-scope storage
// area. Read failures count as misses.
//
// Entries are tagged with the tenant's generation, read before the backend
// was queried. Invalidate rotates the generation, so a list read before a
// mutation but written after it is never served.
type LeadCache struct {
	storage session.Storage
	ttl     time.Duration
	logger  *zap.Logger
}

type cachedLeads struct {
	Gen   string        `json:"gen"`
	Leads []domain.Lead `json:"leads"`
}

func NewLeadCache(storage session.Storage, ttl time.Duration, logger *zap.Logger) *LeadCache {
	if ttl <= 0 {
		ttl = DefaultLeadCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadCache{storage: storage, ttl: ttl, logger: logger}
}

func leadsKey(tenantID string) string { return "leads:" + tenantID }

func genKey(tenantID string) string { return "leads-gen:" + tenantID }

// genTTL outlives any entry, so an expired generation never matches a
// stale entry again.
func (c *LeadCache) genTTL() time.Duration {
	if d := 2 * c.ttl; d > 24*time.Hour {
		return d
	}
	return 24 * time.Hour
}

// Generation returns the tenant's current generation. ok is false when it
// cannot be read, in which case nothing should be cached.
func (c *LeadCache) Generation(ctx context.Context, tenantID string) (gen string, ok bool) {
	gen, err := c.storage.Get(ctx, genKey(tenantID))
	switch {
	case errors.Is(err, session.ErrMiss):
		return "", true
	case err != nil:
		c.logger.Warn("lead cache generation read failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return "", false
	}
	return gen, true
}

func (c *LeadCache) Get(ctx context.Context, tenantID string) ([]domain.Lead, bool) {
	gen, ok := c.Generation(ctx, tenantID)
	if !ok {
		return nil, false
	}
	raw, err := c.storage.Get(ctx, leadsKey(tenantID))
	if err != nil {
		if !errors.Is(err, session.ErrMiss) {
			c.logger.Warn("lead cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		return nil, false
	}
	var entry cachedLeads
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("lead cache entry corrupt", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, false
	}
	if entry.Gen != gen {
		return nil, false
	}
	if entry.Leads == nil {
		entry.Leads = []domain.Lead{}
	}
	return entry.Leads, true
}

// Put stores leads read under generation gen.
func (c *LeadCache) Put(ctx context.Context, tenantID, gen string, leads []domain.Lead) {
	raw, err := json.Marshal(cachedLeads{Gen: gen, Leads: leads})
	if err != nil {
		c.logger.Warn("lead cache encode failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if err := c.storage.Set(ctx, leadsKey(tenantID), string(raw), c.ttl); err != nil {
		c.logger.Warn("lead cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// Invalidate rotates the tenant's generation and drops its entry.
func (c *LeadCache) Invalidate(ctx context.Context, tenantID string) error {
	genErr := c.storage.Set(ctx, genKey(tenantID), ids.ULID(), c.genTTL())
	return errors.Join(genErr, c.storage.Remove(ctx, leadsKey(tenantID)))
}

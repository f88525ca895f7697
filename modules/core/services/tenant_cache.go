package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/pkg/metrics"
)

type cachedTenant struct {
	tenant     *tenant.Tenant
	loadedAt   time.Time
	lastAccess time.Time
}

// TenantCache holds resolved tenants by routing key. An entry is dropped
// after the sliding TTL without hits, and never served past the absolute
// TTL from load, so a lifecycle change is visible within MaxStaleness even
// without explicit invalidation.
type TenantCache struct {
	items    *cache.Cache
	sliding  time.Duration
	absolute time.Duration
	now      func() time.Time
}

type TenantCacheOption func(*TenantCache)

// WithCacheClock replaces time.Now for expiry decisions.
func WithCacheClock(now func() time.Time) TenantCacheOption {
	return func(c *TenantCache) {
		c.now = now
	}
}

func NewTenantCache(sliding, absolute time.Duration, opts ...TenantCacheOption) *TenantCache {
	if absolute < sliding {
		absolute = sliding
	}
	c := &TenantCache{
		items:    cache.New(sliding, absolute),
		sliding:  sliding,
		absolute: absolute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TenantCache) Get(key string) (*tenant.Tenant, bool) {
	raw, ok := c.items.Get(key)
	if !ok {
		metrics.TenantCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	entry := raw.(cachedTenant)
	now := c.now()
	if now.Sub(entry.loadedAt) >= c.absolute || now.Sub(entry.lastAccess) >= c.sliding {
		c.items.Delete(key)
		metrics.TenantCacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}
	entry.lastAccess = now
	c.items.Set(key, entry, c.sliding)
	metrics.TenantCacheLookups.WithLabelValues("hit").Inc()
	return entry.tenant.Clone(), true
}

func (c *TenantCache) Set(key string, t *tenant.Tenant) {
	now := c.now()
	c.items.Set(key, cachedTenant{
		tenant:     t.Clone(),
		loadedAt:   now,
		lastAccess: now,
	}, c.sliding)
}

func (c *TenantCache) Invalidate(key string) {
	c.items.Delete(key)
}

// InvalidateTenant drops every key that resolved to id.
func (c *TenantCache) InvalidateTenant(id uuid.UUID) {
	for key, item := range c.items.Items() {
		if entry, ok := item.Object.(cachedTenant); ok && entry.tenant.ID() == id {
			c.items.Delete(key)
		}
	}
}

func (c *TenantCache) Flush() {
	c.items.Flush()
}

// MaxStaleness bounds how long a registry change can go unnoticed.
func (c *TenantCache) MaxStaleness() time.Duration {
	return c.absolute
}

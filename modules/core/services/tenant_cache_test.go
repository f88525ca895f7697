package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/services"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTenantCache_SlidingAndAbsoluteBounds(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := services.NewTenantCache(5*time.Minute, 30*time.Minute, services.WithCacheClock(clock.Now))
	require.Equal(t, 30*time.Minute, c.MaxStaleness())

	acme := tenant.New("Acme", "tenant_acme", tenant.WithRoutingKeys("acme"))
	c.Set("acme", acme)

	// Hits keep sliding the entry forward ...
	for i := 0; i < 6; i++ {
		clock.Advance(4 * time.Minute)
		_, ok := c.Get("acme")
		require.True(t, ok, "hit %d", i)
	}
	// ... but never past the absolute bound.
	clock.Advance(4 * time.Minute)
	_, ok := c.Get("acme")
	require.True(t, ok)
	clock.Advance(3 * time.Minute)
	_, ok = c.Get("acme")
	require.False(t, ok, "absolute ttl elapsed")

	c.Set("acme", acme)
	clock.Advance(5 * time.Minute)
	_, ok = c.Get("acme")
	require.False(t, ok, "sliding ttl elapsed without hits")
}

func TestTenantCache_ReturnsCopies(t *testing.T) {
	t.Parallel()
	c := services.NewTenantCache(time.Minute, time.Hour)
	acme := tenant.New("Acme", "tenant_acme", tenant.WithStatus(tenant.StatusActive))
	c.Set("acme", acme)

	got, ok := c.Get("acme")
	require.True(t, ok)
	require.NoError(t, got.TransitionTo(tenant.StatusSuspended, "unpaid"))

	again, ok := c.Get("acme")
	require.True(t, ok)
	require.Equal(t, tenant.StatusActive, again.Status())
}

func TestTenantCache_InvalidateTenant(t *testing.T) {
	t.Parallel()
	c := services.NewTenantCache(time.Minute, time.Hour)
	acme := tenant.New("Acme", "tenant_acme")
	globex := tenant.New("Globex", "tenant_globex")
	c.Set("acme", acme)
	c.Set(acme.ID().String(), acme)
	c.Set("globex", globex)

	c.InvalidateTenant(acme.ID())
	_, ok := c.Get("acme")
	require.False(t, ok)
	_, ok = c.Get(acme.ID().String())
	require.False(t, ok)
	_, ok = c.Get("globex")
	require.True(t, ok)

	c.Invalidate("globex")
	_, ok = c.Get("globex")
	require.False(t, ok)
}

package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "tenantgate-test"
	testPassword = "correct horse battery staple"
)

type testFixture struct {
	Ctx       context.Context
	Store     *persistence.InMemoryStore
	Scope     services.StoreScope
	Bus       eventbus.EventBus
	Cache     *services.TenantCache
	Resolver  *services.TenantResolver
	Tokens    *services.TokenService
	Auth      *services.AuthService
	Users     *services.UserService
	Lifecycle *services.TenantLifecycleService
	Acme      *tenant.Tenant
	Globex    *tenant.Tenant
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	scope      func(inner services.StoreScope) services.StoreScope
	bcryptCost int
}

func withScope(wrap func(inner services.StoreScope) services.StoreScope) fixtureOption {
	return func(c *fixtureConfig) {
		c.scope = wrap
	}
}

func withBcryptCost(cost int) fixtureOption {
	return func(c *fixtureConfig) {
		c.bcryptCost = cost
	}
}

// setupTest builds the services over an in-memory registry with two active
// tenants, acme and globex, each holding alice@<tenant>.com.
func setupTest(t *testing.T, opts ...fixtureOption) *testFixture {
	t.Helper()
	cfg := fixtureConfig{bcryptCost: bcrypt.MinCost}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store := persistence.NewInMemoryStore()
	var scope services.StoreScope = store
	if cfg.scope != nil {
		scope = cfg.scope(store)
	}
	bus := eventbus.NewEventPublisher(logger)
	cache := services.NewTenantCache(5*time.Minute, 30*time.Minute)
	resolver := services.NewTenantResolver(store.Tenants(), cache, services.TenantResolverConfig{
		ReservedSubdomains: []string{"www", "api"},
	})
	tokens := services.NewTokenService(testSecret, testIssuer, 15*time.Minute)
	f := &testFixture{
		Ctx:       context.Background(),
		Store:     store,
		Scope:     scope,
		Bus:       bus,
		Cache:     cache,
		Resolver:  resolver,
		Tokens:    tokens,
		Lifecycle: services.NewTenantLifecycleService(store.Tenants(), cache, bus),
		Users:     services.NewUserService(store, store.Users(), bus, cfg.bcryptCost),
		Auth: services.NewAuthService(services.AuthServiceOptions{
			Resolver:        resolver,
			Tenants:         store.Tenants(),
			Scope:           scope,
			Users:           store.Users(),
			RefreshTokens:   store.RefreshTokens(),
			Tokens:          tokens,
			Publisher:       bus,
			RefreshTokenTTL: time.Hour,
			BcryptCost:      cfg.bcryptCost,
		}),
	}
	f.Acme = f.activeTenant(t, "Acme", "tenant_acme", "acme", "alice@acme.com")
	f.Globex = f.activeTenant(t, "Globex", "tenant_globex", "globex", "alice@globex.com")
	return f
}

func (f *testFixture) activeTenant(t *testing.T, name, storeName, key, email string) *tenant.Tenant {
	t.Helper()
	tn, err := f.Lifecycle.Register(f.Ctx, services.RegisterTenantParams{
		Name:        name,
		StoreName:   storeName,
		RoutingKeys: []string{key},
		PlanID:      "pro",
	})
	require.NoError(t, err)
	require.NoError(t, f.Store.ProvisionStore(storeName))
	_, err = f.Users.Create(f.Ctx, storeName, services.CreateUserParams{
		Email:     email,
		Password:  testPassword,
		FirstName: "Alice",
		LastName:  name,
		Roles: []*role.Role{
			role.New("admin", role.WithPermissions("users.write", "users.read")),
			role.New("viewer", role.WithPermissions("users.read", "reports.read")),
		},
	})
	require.NoError(t, err)
	tn, err = f.Lifecycle.Activate(f.Ctx, tn.ID())
	require.NoError(t, err)
	return tn
}

func (f *testFixture) login(t *testing.T, key, email string) *services.LoginResult {
	t.Helper()
	res, err := f.Auth.Login(f.Ctx, services.LoginParams{
		RoutingKey: key,
		Email:      email,
		Password:   testPassword,
		ClientIP:   "10.0.0.1",
	})
	require.NoError(t, err)
	return res
}

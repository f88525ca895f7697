//go:build integration

package persistence_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/tenantgate/migrations"
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
)

func TestPostgres_Integration_RegistryAndStores(t *testing.T) {
	dsn := os.Getenv("TENANTGATE_TEST_DSN")
	if dsn == "" {
		t.Skip("TENANTGATE_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err := migrations.ApplyShared(ctx, dsn)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	acmeStore := "it_acme_" + suffix
	globexStore := "it_globex_" + suffix
	for _, s := range []string{acmeStore, globexStore} {
		_, err := migrations.ProvisionStore(ctx, dsn, s)
		require.NoError(t, err)
		schema := s
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		})
	}

	tenants := persistence.NewTenantRepository(pool)
	acme, err := tenants.Create(ctx, tenant.New("Acme", acmeStore,
		tenant.WithRoutingKeys("acme-"+suffix), tenant.WithStatus(tenant.StatusActive)))
	require.NoError(t, err)
	_, err = tenants.Create(ctx, tenant.New("Dup", "it_dup_"+suffix, tenant.WithRoutingKeys("acme-"+suffix)))
	require.ErrorIs(t, err, tenant.ErrRoutingKeyTaken)

	found, err := tenants.FindByRoutingKey(ctx, "ACME-"+suffix)
	require.NoError(t, err)
	require.Equal(t, acme.ID(), found.ID())
	require.Equal(t, []string{"acme-" + suffix}, found.RoutingKeys())

	scope := persistence.NewPgStoreScope(pool)
	users := persistence.NewUserRepository()
	tokens := persistence.NewRefreshTokenRepository()

	hash, err := user.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	alice := user.New("Alice@Acme.com", user.WithPasswordHash(hash), user.WithRoles(
		role.New("admin", role.WithPermissions("users.read", "users.write")),
	))

	require.NoError(t, scope.Run(ctx, acmeStore, func(ctx context.Context) error {
		created, err := users.Create(ctx, alice)
		require.NoError(t, err)
		require.Equal(t, []string{"users.read", "users.write"}, created.Permissions())

		old, err := refreshtoken.New(alice.ID(), time.Hour, "10.0.0.1")
		require.NoError(t, err)
		require.NoError(t, tokens.Create(ctx, old))
		next, err := refreshtoken.New(alice.ID(), time.Hour, "10.0.0.1")
		require.NoError(t, err)
		require.NoError(t, tokens.Rotate(ctx, old, "10.0.0.2", next))
		require.ErrorIs(t, tokens.Rotate(ctx, old, "10.0.0.2", next), refreshtoken.ErrAlreadyRevoked)
		return nil
	}))

	require.NoError(t, scope.Run(ctx, globexStore, func(ctx context.Context) error {
		_, err := users.GetByEmail(ctx, "alice@acme.com")
		require.ErrorIs(t, err, user.ErrNotFound)
		return nil
	}))

	err = scope.Run(ctx, "bad-name; drop", func(context.Context) error { return nil })
	require.ErrorIs(t, err, persistence.ErrInvalidStoreName)
}

package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUseTenant_FailsClosed(t *testing.T) {
	_, err := UseTenant(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)

	_, err = UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestWithTenant_SetsOnceAndFillsParams(t *testing.T) {
	params := &Params{IP: "10.0.0.1"}
	ctx := WithParams(context.Background(), params)

	acme := TenantContext{TenantID: uuid.New(), StoreName: "tenant_acme", PlanID: "pro"}
	ctx, err := WithTenant(ctx, acme)
	require.NoError(t, err)

	got, err := UseTenant(ctx)
	require.NoError(t, err)
	require.Equal(t, acme, got)
	require.Equal(t, acme.TenantID.String(), params.TenantID)
	require.Equal(t, "tenant_acme", params.StoreName)
	require.Equal(t, "pro", params.PlanID)

	same, err := WithTenant(ctx, acme)
	require.NoError(t, err)
	require.Equal(t, ctx, same)

	_, err = WithTenant(ctx, TenantContext{TenantID: uuid.New(), StoreName: "tenant_globex"})
	require.ErrorIs(t, err, ErrTenantAlreadySet)
}

func TestWithTenant_RejectsZero(t *testing.T) {
	_, err := WithTenant(context.Background(), TenantContext{})
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestUseTx_NoFallbackToPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoTx)

	_, err = UseStoreName(context.Background())
	require.ErrorIs(t, err, ErrNoStore)
}

func TestIdentity_Can(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{Permissions: []string{"orders.read"}})
	id, err := UseIdentity(ctx)
	require.NoError(t, err)
	require.True(t, id.Can("orders.read"))
	require.False(t, id.Can("orders.write"))

	_, err = UseIdentity(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

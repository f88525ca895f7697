package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/services"
)

func TestTenantLifecycleService_Register(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	tn, err := f.Lifecycle.Register(f.Ctx, services.RegisterTenantParams{
		Name:        "Initech",
		StoreName:   "tenant_initech",
		RoutingKeys: []string{"Initech", "initech-corp"},
	})
	require.NoError(t, err)
	require.Equal(t, tenant.StatusProvisioning, tn.Status())
	require.Equal(t, []string{"initech", "initech-corp"}, tn.RoutingKeys())

	_, err = f.Lifecycle.Register(f.Ctx, services.RegisterTenantParams{Name: "x", StoreName: "tenant_x", RoutingKeys: []string{"acme"}})
	require.ErrorIs(t, err, services.ErrRoutingKeyTaken)
	_, err = f.Lifecycle.Register(f.Ctx, services.RegisterTenantParams{Name: "x", StoreName: "tenant_acme"})
	require.ErrorIs(t, err, services.ErrStoreNameTaken)
	_, err = f.Lifecycle.Register(f.Ctx, services.RegisterTenantParams{Name: "x", StoreName: "Robert'); DROP"})
	require.ErrorIs(t, err, services.ErrInvalidStoreName)
}

func TestTenantLifecycleService_Transitions(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	var changes []*services.TenantStatusChangedEvent
	f.Bus.Subscribe(func(e *services.TenantStatusChangedEvent) {
		changes = append(changes, e)
	})

	// Warm the cache; the suspension must be visible right away.
	_, err := f.Resolver.Lookup(f.Ctx, "acme")
	require.NoError(t, err)

	suspended, err := f.Lifecycle.Suspend(f.Ctx, f.Acme.ID(), "unpaid")
	require.NoError(t, err)
	require.Equal(t, "unpaid", suspended.SuspendReason())

	cached, err := f.Resolver.Lookup(f.Ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, tenant.StatusSuspended, cached.Status())

	_, err = f.Lifecycle.Activate(f.Ctx, f.Acme.ID())
	require.NoError(t, err, "suspended tenants can be reactivated")
	_, err = f.Lifecycle.Terminate(f.Ctx, f.Acme.ID())
	require.NoError(t, err)
	_, err = f.Lifecycle.Reactivate(f.Ctx, f.Acme.ID())
	require.ErrorIs(t, err, services.ErrInvalidTransition)

	require.Len(t, changes, 3)
	require.Equal(t, tenant.StatusActive, changes[0].From)
	require.Equal(t, tenant.StatusTerminated, changes[2].To)
}

func TestTenantLifecycleService_ChangePlan(t *testing.T) {
	t.Parallel()
	f := setupTest(t)
	updated, err := f.Lifecycle.ChangePlan(f.Ctx, f.Globex.ID(), "enterprise")
	require.NoError(t, err)
	require.Equal(t, "enterprise", updated.PlanID())

	res := f.login(t, "globex", "alice@globex.com")
	claims, err := f.Tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "enterprise", claims.PlanID)
}

func TestTenantLifecycleService_FindAndGet(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	byKey, err := f.Lifecycle.Find(f.Ctx, " ACME ")
	require.NoError(t, err)
	require.Equal(t, f.Acme.ID(), byKey.ID())

	byID, err := f.Lifecycle.Find(f.Ctx, f.Globex.ID().String())
	require.NoError(t, err)
	require.Equal(t, f.Globex.ID(), byID.ID())

	got, err := f.Lifecycle.Get(f.Ctx, f.Acme.ID())
	require.NoError(t, err)
	require.Equal(t, f.Acme.StoreName(), got.StoreName())

	_, err = f.Lifecycle.Find(f.Ctx, "nobody")
	require.ErrorIs(t, err, services.ErrTenantNotFound)
	_, err = f.Lifecycle.Get(f.Ctx, uuid.New())
	require.ErrorIs(t, err, services.ErrTenantNotFound)
}

// lockstepRepository holds every GetByID until both racing callers have read.
type lockstepRepository struct {
	tenant.Repository
	reads sync.WaitGroup
}

func (r *lockstepRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t, err := r.Repository.GetByID(ctx, id)
	r.reads.Done()
	r.reads.Wait()
	return t, err
}

func TestTenantLifecycleService_ConcurrentTransitionsKeepTerminated(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	_, err := f.Lifecycle.Suspend(f.Ctx, f.Acme.ID(), "unpaid")
	require.NoError(t, err)

	repo := &lockstepRepository{Repository: f.Store.Tenants()}
	repo.reads.Add(2)
	racing := services.NewTenantLifecycleService(repo, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = racing.Terminate(f.Ctx, f.Acme.ID())
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = racing.Reactivate(f.Ctx, f.Acme.ID())
	}()
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, services.ErrInvalidTransition)
			failed++
		}
	}
	require.Equal(t, 1, failed, "exactly one of the racing transitions must win")

	current, err := f.Store.Tenants().GetByID(f.Ctx, f.Acme.ID())
	require.NoError(t, err)
	if errs[0] == nil {
		require.Equal(t, tenant.StatusTerminated, current.Status())
	} else {
		require.Equal(t, tenant.StatusActive, current.Status())
		_, err = f.Lifecycle.Terminate(f.Ctx, f.Acme.ID())
		require.NoError(t, err)
		_, err = f.Lifecycle.Reactivate(f.Ctx, f.Acme.ID())
		require.ErrorIs(t, err, services.ErrInvalidTransition)
	}
}

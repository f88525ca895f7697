package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/pkg/constants"
)

var (
	ErrNoTenant         = errors.New("no tenant found in context")
	ErrTenantAlreadySet = errors.New("tenant already set in context")
)

// TenantContext scopes a request to one tenant's isolated store.
// It is a value carried by the request context; it is never cached or shared.
type TenantContext struct {
	TenantID  uuid.UUID
	StoreName string
	PlanID    string
}

func (t TenantContext) IsZero() bool {
	return t.TenantID == uuid.Nil && t.StoreName == ""
}

// WithTenant attaches the tenant context once. Re-attaching the same tenant is
// a no-op; attaching a different one fails.
func WithTenant(ctx context.Context, t TenantContext) (context.Context, error) {
	if t.IsZero() {
		return ctx, ErrNoTenant
	}
	if existing, ok := ctx.Value(constants.TenantKey).(TenantContext); ok {
		if existing == t {
			return ctx, nil
		}
		return ctx, ErrTenantAlreadySet
	}
	if params, ok := UseParams(ctx); ok {
		params.TenantID = t.TenantID.String()
		params.StoreName = t.StoreName
		params.PlanID = t.PlanID
	}
	return context.WithValue(ctx, constants.TenantKey, t), nil
}

// UseTenant returns the tenant context, failing closed when none was attached.
func UseTenant(ctx context.Context) (TenantContext, error) {
	t, ok := ctx.Value(constants.TenantKey).(TenantContext)
	if !ok || t.IsZero() {
		return TenantContext{}, ErrNoTenant
	}
	return t, nil
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	t, err := UseTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return t.TenantID, nil
}

package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("tenant not found")
	ErrRoutingKeyTaken = errors.New("routing key already in use")
	ErrStoreNameTaken  = errors.New("store name already in use")
	ErrStaleStatus     = errors.New("tenant status changed concurrently")
)

// Repository is the tenant registry. It lives in the shared schema and is
// reachable without a tenant context.
type Repository interface {
	// FindByRoutingKey matches a normalized routing key or the tenant id.
	FindByRoutingKey(ctx context.Context, key string) (*Tenant, error)
	FindActive(ctx context.Context) ([]*Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	// Update writes t only while the stored status still equals expected,
	// otherwise it returns ErrStaleStatus.
	Update(ctx context.Context, t *Tenant, expected Status) (*Tenant, error)
}

package composables

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/pkg/constants"
)

var ErrUnauthenticated = errors.New("no authenticated identity in context")

// Identity is the verified content of an access token.
type Identity struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	StoreName   string
	PlanID      string
	Email       string
	Roles       []string
	Permissions []string
}

func (i *Identity) Can(permission string) bool {
	return slices.Contains(i.Permissions, permission)
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, constants.IdentityKey, identity)
}

func UseIdentity(ctx context.Context) (*Identity, error) {
	identity, ok := ctx.Value(constants.IdentityKey).(*Identity)
	if !ok || identity == nil {
		return nil, ErrUnauthenticated
	}
	return identity, nil
}

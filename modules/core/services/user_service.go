package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

type CreateUserParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []*role.Role
}

type UserCreatedEvent struct {
	TenantStore string
	UserID      uuid.UUID
	Email       string
	OccurredAt  time.Time
}

type UserService struct {
	scope      StoreScope
	repo       user.Repository
	publisher  eventbus.EventBus
	bcryptCost int
}

func NewUserService(scope StoreScope, repo user.Repository, publisher eventbus.EventBus, bcryptCost int) *UserService {
	return &UserService{
		scope:      scope,
		repo:       repo,
		publisher:  publisher,
		bcryptCost: bcryptCost,
	}
}

// Create adds a user to the given tenant store.
func (s *UserService) Create(ctx context.Context, storeName string, p CreateUserParams) (*user.User, error) {
	data := user.New(
		p.Email,
		user.WithName(p.FirstName, p.LastName),
		user.WithRoles(p.Roles...),
	)
	if err := data.SetPassword(p.Password, s.bcryptCost); err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	var created *user.User
	err := s.scope.Run(ctx, storeName, func(ctx context.Context) error {
		u, err := s.repo.Create(ctx, data)
		if err != nil {
			return err
		}
		created = u
		return nil
	})
	if errors.Is(err, user.ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(&UserCreatedEvent{
			TenantStore: storeName,
			UserID:      created.ID(),
			Email:       created.Email(),
			OccurredAt:  time.Now(),
		})
	}
	return created, nil
}

// GetCurrent loads the authenticated user from the store of the request's tenant.
func (s *UserService) GetCurrent(ctx context.Context) (*user.User, error) {
	t, err := composables.UseTenant(ctx)
	if err != nil {
		return nil, ErrTenantRequired
	}
	identity, err := composables.UseIdentity(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if identity.TenantID != t.TenantID {
		return nil, ErrInvalidToken.WithDetail("token tenant does not match request tenant")
	}

	var u *user.User
	err = s.scope.Run(ctx, t.StoreName, func(ctx context.Context) error {
		found, err := s.repo.GetByID(ctx, identity.UserID)
		if err != nil {
			return err
		}
		u = found
		return nil
	})
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUserInactive
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive() {
		return nil, ErrUserInactive
	}
	return u, nil
}

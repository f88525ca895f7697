package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

type RegisterTenantParams struct {
	Name                string
	StoreName           string
	RoutingKeys         []string
	PlanID              string
	SubscriptionEndDate *time.Time
}

type TenantStatusChangedEvent struct {
	TenantID   uuid.UUID
	From       tenant.Status
	To         tenant.Status
	Reason     string
	OccurredAt time.Time
}

// TenantLifecycleService drives registry state changes. Billing and
// provisioning call it; request handling only reads the registry.
type TenantLifecycleService struct {
	repo      tenant.Repository
	cache     *TenantCache
	publisher eventbus.EventBus
}

func NewTenantLifecycleService(repo tenant.Repository, cache *TenantCache, publisher eventbus.EventBus) *TenantLifecycleService {
	return &TenantLifecycleService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
	}
}

// Register records a new tenant in the provisioning state.
func (s *TenantLifecycleService) Register(ctx context.Context, p RegisterTenantParams) (*tenant.Tenant, error) {
	storeName := tenant.NormalizeKey(p.StoreName)
	if !configuration.ValidStoreName(storeName) {
		return nil, ErrInvalidStoreName.WithDetail(p.StoreName)
	}
	for _, key := range tenant.NormalizeKeys(p.RoutingKeys) {
		if _, err := uuid.Parse(key); err == nil {
			return nil, ErrRoutingKeyTaken.WithDetail("routing key must not be a uuid")
		}
	}
	t := tenant.New(
		p.Name,
		storeName,
		tenant.WithRoutingKeys(p.RoutingKeys...),
		tenant.WithPlanID(p.PlanID),
		tenant.WithSubscriptionEndDate(p.SubscriptionEndDate),
	)
	created, err := s.repo.Create(ctx, t)
	switch {
	case errors.Is(err, tenant.ErrRoutingKeyTaken):
		return nil, ErrRoutingKeyTaken
	case errors.Is(err, tenant.ErrStoreNameTaken):
		return nil, ErrStoreNameTaken
	case err != nil:
		return nil, err
	}
	return created, nil
}

// Activate completes provisioning.
func (s *TenantLifecycleService) Activate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.transition(ctx, id, tenant.StatusActive, "")
}

func (s *TenantLifecycleService) Suspend(ctx context.Context, id uuid.UUID, reason string) (*tenant.Tenant, error) {
	return s.transition(ctx, id, tenant.StatusSuspended, reason)
}

func (s *TenantLifecycleService) Reactivate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.transition(ctx, id, tenant.StatusActive, "")
}

func (s *TenantLifecycleService) Terminate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.transition(ctx, id, tenant.StatusTerminated, "")
}

func (s *TenantLifecycleService) ChangePlan(ctx context.Context, id uuid.UUID, planID string) (*tenant.Tenant, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.SetPlanID(planID)
	updated, err := s.repo.Update(ctx, t, t.Status())
	if errors.Is(err, tenant.ErrStaleStatus) {
		return nil, ErrInvalidTransition.WithDetail(err.Error())
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(id)
	return updated, nil
}

func (s *TenantLifecycleService) transition(ctx context.Context, id uuid.UUID, next tenant.Status, reason string) (*tenant.Tenant, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := t.Status()
	if err := t.TransitionTo(next, reason); err != nil {
		return nil, ErrInvalidTransition.WithDetail(err.Error())
	}
	updated, err := s.repo.Update(ctx, t, from)
	if errors.Is(err, tenant.ErrStaleStatus) {
		return nil, ErrInvalidTransition.WithDetail(err.Error())
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(id)
	if s.publisher != nil {
		s.publisher.Publish(&TenantStatusChangedEvent{
			TenantID:   id,
			From:       from,
			To:         next,
			Reason:     reason,
			OccurredAt: time.Now(),
		})
	}
	return updated, nil
}

func (s *TenantLifecycleService) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.get(ctx, id)
}

// Find looks a tenant up by routing key or id, bypassing any cache.
func (s *TenantLifecycleService) Find(ctx context.Context, key string) (*tenant.Tenant, error) {
	t, err := s.repo.FindByRoutingKey(ctx, tenant.NormalizeKey(key))
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return t, err
}

func (s *TenantLifecycleService) get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return t, err
}

func (s *TenantLifecycleService) invalidate(id uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateTenant(id)
	}
}

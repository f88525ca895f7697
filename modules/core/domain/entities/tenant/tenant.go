package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidStatusTransition = errors.New("invalid tenant status transition")

type Tenant struct {
	id                  uuid.UUID
	name                string
	routingKeys         []string
	storeName           string
	status              Status
	planID              string
	subscriptionEndDate *time.Time
	suspendReason       string
	createdAt           time.Time
	updatedAt           time.Time
}

type Option func(*Tenant)

func WithID(id uuid.UUID) Option {
	return func(t *Tenant) {
		t.id = id
	}
}

func WithRoutingKeys(keys ...string) Option {
	return func(t *Tenant) {
		t.routingKeys = NormalizeKeys(keys)
	}
}

func WithStatus(status Status) Option {
	return func(t *Tenant) {
		t.status = status
	}
}

func WithPlanID(planID string) Option {
	return func(t *Tenant) {
		t.planID = planID
	}
}

func WithSubscriptionEndDate(end *time.Time) Option {
	return func(t *Tenant) {
		t.subscriptionEndDate = end
	}
}

func WithSuspendReason(reason string) Option {
	return func(t *Tenant) {
		t.suspendReason = reason
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(t *Tenant) {
		t.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(t *Tenant) {
		t.updatedAt = updatedAt
	}
}

// New creates a tenant in the provisioning state unless overridden by opts.
func New(name, storeName string, opts ...Option) *Tenant {
	now := time.Now()
	t := &Tenant{
		id:        uuid.New(),
		name:      name,
		storeName: strings.ToLower(strings.TrimSpace(storeName)),
		status:    StatusProvisioning,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tenant) ID() uuid.UUID {
	return t.id
}

func (t *Tenant) Name() string {
	return t.name
}

func (t *Tenant) RoutingKeys() []string {
	return append([]string(nil), t.routingKeys...)
}

func (t *Tenant) StoreName() string {
	return t.storeName
}

func (t *Tenant) Status() Status {
	return t.status
}

func (t *Tenant) PlanID() string {
	return t.planID
}

func (t *Tenant) SubscriptionEndDate() *time.Time {
	return t.subscriptionEndDate
}

func (t *Tenant) SuspendReason() string {
	return t.suspendReason
}

func (t *Tenant) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Tenant) UpdatedAt() time.Time {
	return t.updatedAt
}

func (t *Tenant) IsActive() bool {
	return t.status == StatusActive
}

// HasRoutingKey matches a normalized key against the routing keys and the id.
func (t *Tenant) HasRoutingKey(key string) bool {
	key = NormalizeKey(key)
	if key == "" {
		return false
	}
	if key == t.id.String() {
		return true
	}
	for _, k := range t.routingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// TransitionTo moves the tenant along the lifecycle. The suspend reason is
// kept only while suspended.
func (t *Tenant) TransitionTo(next Status, reason string) error {
	if !t.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.status, next)
	}
	t.status = next
	if next == StatusSuspended {
		t.suspendReason = reason
	} else {
		t.suspendReason = ""
	}
	t.updatedAt = time.Now()
	return nil
}

func (t *Tenant) SetPlanID(planID string) {
	t.planID = planID
	t.updatedAt = time.Now()
}

func (t *Tenant) SetSubscriptionEndDate(end *time.Time) {
	t.subscriptionEndDate = end
	t.updatedAt = time.Now()
}

// Clone returns a deep copy so cached tenants are never mutated in place.
func (t *Tenant) Clone() *Tenant {
	c := *t
	c.routingKeys = append([]string(nil), t.routingKeys...)
	if t.subscriptionEndDate != nil {
		end := *t.subscriptionEndDate
		c.subscriptionEndDate = &end
	}
	return &c
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func NormalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = NormalizeKey(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

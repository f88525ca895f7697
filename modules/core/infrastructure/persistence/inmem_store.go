package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/configuration"
)

var ErrStoreNotProvisioned = errors.New("store not provisioned")

// InMemoryStore is a process-local registry plus per-tenant stores keyed by
// store name. Repositories obtained from it read the store name from the
// context, exactly like the Postgres ones read the search_path, so services
// behave the same against both. Writes are not rolled back on error.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenant.Tenant
	stores  map[string]*memStore
}

type memStore struct {
	users  map[uuid.UUID]*user.User
	tokens map[string]*refreshtoken.RefreshToken
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants: make(map[uuid.UUID]*tenant.Tenant),
		stores:  make(map[string]*memStore),
	}
}

func (s *InMemoryStore) Tenants() tenant.Repository {
	return &memTenantRepository{s: s}
}

func (s *InMemoryStore) Users() user.Repository {
	return &memUserRepository{s: s}
}

func (s *InMemoryStore) RefreshTokens() refreshtoken.Repository {
	return &memRefreshTokenRepository{s: s}
}

// ProvisionStore creates an empty isolated store. It is idempotent.
func (s *InMemoryStore) ProvisionStore(storeName string) error {
	if !configuration.ValidStoreName(storeName) {
		return errors.Wrapf(ErrInvalidStoreName, "%q", storeName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[storeName]; !ok {
		s.stores[storeName] = &memStore{
			users:  make(map[uuid.UUID]*user.User),
			tokens: make(map[string]*refreshtoken.RefreshToken),
		}
	}
	return nil
}

func (s *InMemoryStore) Run(ctx context.Context, storeName string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	_, ok := s.stores[storeName]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrStoreNotProvisioned, "%q", storeName)
	}
	return fn(composables.WithStoreName(ctx, storeName))
}

// store must be called with s.mu held.
func (s *InMemoryStore) store(ctx context.Context) (*memStore, error) {
	name, err := composables.UseStoreName(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := s.stores[name]
	if !ok {
		return nil, errors.Wrapf(ErrStoreNotProvisioned, "%q", name)
	}
	return st, nil
}

type memTenantRepository struct {
	s *InMemoryStore
}

func (r *memTenantRepository) FindByRoutingKey(ctx context.Context, key string) (*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.HasRoutingKey(key) {
			return t.Clone(), nil
		}
	}
	return nil, tenant.ErrNotFound
}

func (r *memTenantRepository) FindActive(ctx context.Context) ([]*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*tenant.Tenant
	for _, t := range r.s.tenants {
		if t.IsActive() {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID().String() < out[j].ID().String()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

func (r *memTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *memTenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(t); err != nil {
		return nil, err
	}
	r.s.tenants[t.ID()] = t.Clone()
	return t.Clone(), nil
}

func (r *memTenantRepository) Update(ctx context.Context, t *tenant.Tenant, expected tenant.Status) (*tenant.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tenants[t.ID()]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	if current.Status() != expected {
		return nil, tenant.ErrStaleStatus
	}
	if err := r.checkUnique(t); err != nil {
		return nil, err
	}
	r.s.tenants[t.ID()] = t.Clone()
	return t.Clone(), nil
}

func (r *memTenantRepository) checkUnique(t *tenant.Tenant) error {
	for id, other := range r.s.tenants {
		if id == t.ID() {
			continue
		}
		if other.StoreName() == t.StoreName() {
			return tenant.ErrStoreNameTaken
		}
		for _, key := range t.RoutingKeys() {
			if other.HasRoutingKey(key) {
				return tenant.ErrRoutingKeyTaken
			}
		}
	}
	return nil
}

type memUserRepository struct {
	s *InMemoryStore
}

func (r *memUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return nil, err
	}
	email = user.NormalizeEmail(email)
	for _, u := range st.users {
		if u.Email() == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return nil, err
	}
	for _, existing := range st.users {
		if existing.Email() == u.Email() {
			return nil, user.ErrEmailTaken
		}
	}
	st.users[u.ID()] = u
	return u, nil
}

type memRefreshTokenRepository struct {
	s *InMemoryStore
}

func (r *memRefreshTokenRepository) Create(ctx context.Context, t *refreshtoken.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return err
	}
	cp := *t
	st.tokens[t.Token] = &cp
	return nil
}

func (r *memRefreshTokenRepository) GetByToken(ctx context.Context, token string) (*refreshtoken.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := st.tokens[token]
	if !ok {
		return nil, refreshtoken.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRefreshTokenRepository) Rotate(ctx context.Context, old *refreshtoken.RefreshToken, ip string, replacement *refreshtoken.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return err
	}
	stored, ok := st.tokens[old.Token]
	if !ok {
		return refreshtoken.ErrNotFound
	}
	if stored.IsRevoked {
		return refreshtoken.ErrAlreadyRevoked
	}
	now := time.Now().UTC()
	stored.Revoke(now, ip, replacement.Token)
	cp := *replacement
	st.tokens[replacement.Token] = &cp
	old.Revoke(now, ip, replacement.Token)
	return nil
}

func (r *memRefreshTokenRepository) Revoke(ctx context.Context, token, ip string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return err
	}
	stored, ok := st.tokens[token]
	if !ok {
		return refreshtoken.ErrNotFound
	}
	if stored.IsRevoked {
		return refreshtoken.ErrAlreadyRevoked
	}
	stored.Revoke(time.Now().UTC(), ip, "")
	return nil
}

func (r *memRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, ip string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.store(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	count := 0
	for _, t := range st.tokens {
		if t.UserID == userID && t.IsActive(now) {
			t.Revoke(now, ip, "")
			count++
		}
	}
	return count, nil
}

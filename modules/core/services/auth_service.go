package services

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
	"github.com/iota-uz/tenantgate/pkg/metrics"
	"github.com/iota-uz/tenantgate/pkg/serrors"
)

var tracer = otel.Tracer("github.com/iota-uz/tenantgate/modules/core/services")

type LoginParams struct {
	RoutingKey string
	Email      string
	Password   string
	ClientIP   string
}

type UserSummary struct {
	ID          uuid.UUID
	Email       string
	FirstName   string
	LastName    string
	Roles       []string
	Permissions []string
}

type TokenPair struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

type LoginResult struct {
	TokenPair
	TenantID uuid.UUID
	User     UserSummary
}

type AuthServiceOptions struct {
	Resolver        *TenantResolver
	Tenants         tenant.Repository
	Scope           StoreScope
	Users           user.Repository
	RefreshTokens   refreshtoken.Repository
	Tokens          *TokenService
	Publisher       eventbus.EventBus
	RefreshTokenTTL time.Duration
	// BcryptCost must match the cost users are hashed with, so the dummy
	// comparison for unknown users takes as long as a real one.
	BcryptCost int
}

// AuthService authenticates users inside their tenant's isolated store and
// manages the refresh token lifecycle across stores.
type AuthService struct {
	resolver   *TenantResolver
	tenants    tenant.Repository
	scope      StoreScope
	users      user.Repository
	refresh    refreshtoken.Repository
	tokens     *TokenService
	publisher  eventbus.EventBus
	refreshTTL time.Duration
	dummyHash  []byte
	now        func() time.Time
}

func NewAuthService(opts AuthServiceOptions) *AuthService {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	dummy, err := bcrypt.GenerateFromPassword(secret, cost)
	if err != nil {
		dummy, _ = bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	}
	return &AuthService{
		resolver:   opts.Resolver,
		tenants:    opts.Tenants,
		scope:      opts.Scope,
		users:      opts.Users,
		refresh:    opts.RefreshTokens,
		tokens:     opts.Tokens,
		publisher:  opts.Publisher,
		refreshTTL: opts.RefreshTokenTTL,
		dummyHash:  dummy,
		now:        time.Now,
	}
}

func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

func (s *AuthService) Login(ctx context.Context, p LoginParams) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	t, err := s.resolver.Lookup(ctx, p.RoutingKey)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, s.loginFailed(ctx, p, uuid.Nil, ErrTenantNotFound)
	}
	if err != nil {
		recordError(span, err)
		return nil, s.loginFailed(ctx, p, uuid.Nil, err)
	}
	if !t.IsActive() {
		return nil, s.loginFailed(ctx, p, t.ID(), ErrTenantNotFound)
	}
	span.SetAttributes(attribute.String("tenant.id", t.ID().String()))

	var result *LoginResult
	err = s.scope.Run(ctx, t.StoreName(), func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, p.Email)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			return errors.Wrap(err, "load user")
		}
		if u == nil || !u.IsActive() {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(p.Password))
			return ErrInvalidCredentials
		}
		if !u.CheckPassword(p.Password) {
			return ErrInvalidCredentials
		}
		pair, err := s.issuePair(ctx, t, u, p.ClientIP)
		if err != nil {
			return err
		}
		result = &LoginResult{
			TokenPair: *pair,
			TenantID:  t.ID(),
			User: UserSummary{
				ID:          u.ID(),
				Email:       u.Email(),
				FirstName:   u.FirstName(),
				LastName:    u.LastName(),
				Roles:       u.RoleNames(),
				Permissions: u.Permissions(),
			},
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, s.loginFailed(ctx, p, t.ID(), err)
	}

	metrics.AuthAttempts.WithLabelValues("login", "ok").Inc()
	s.publish(&LoginSucceededEvent{
		Sender:     senderFromContext(ctx, p.ClientIP),
		TenantID:   t.ID(),
		UserID:     result.User.ID,
		Email:      result.User.Email,
		OccurredAt: s.now(),
	})
	return result, nil
}

// Refresh finds the store holding token by scanning every active tenant,
// then rotates it there.
func (s *AuthService) Refresh(ctx context.Context, token, clientIP string) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer span.End()

	if token == "" {
		s.countAttempt("refresh", ErrInvalidToken)
		return nil, ErrInvalidToken
	}

	var (
		pair     *TokenPair
		owner    *tenant.Tenant
		ownerUID uuid.UUID
	)
	found, err := s.scanStores(ctx, func(ctx context.Context, t *tenant.Tenant) (bool, error) {
		rt, err := s.refresh.GetByToken(ctx, token)
		if errors.Is(err, refreshtoken.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		owner = t
		ownerUID = rt.UserID
		if rt.IsRevoked {
			return true, ErrInvalidToken
		}
		if rt.IsExpired(s.now()) {
			return true, ErrTokenExpired
		}
		u, err := s.users.GetByID(ctx, rt.UserID)
		if errors.Is(err, user.ErrNotFound) {
			return true, ErrUserInactive
		}
		if err != nil {
			return true, errors.Wrap(err, "load token owner")
		}
		if !u.IsActive() {
			return true, ErrUserInactive
		}

		replacement, err := refreshtoken.New(u.ID(), s.refreshTTL, clientIP)
		if err != nil {
			return true, errors.Wrap(err, "generate refresh token")
		}
		access, accessExp, err := s.tokens.Issue(subjectFor(t, u))
		if err != nil {
			return true, err
		}
		if err := s.refresh.Rotate(ctx, rt, clientIP, replacement); err != nil {
			if errors.Is(err, refreshtoken.ErrAlreadyRevoked) {
				return true, ErrInvalidToken
			}
			return true, errors.Wrap(err, "rotate refresh token")
		}
		pair = &TokenPair{
			AccessToken:           access,
			RefreshToken:          replacement.Token,
			AccessTokenExpiresAt:  accessExp,
			RefreshTokenExpiresAt: replacement.ExpiresAt,
		}
		return true, nil
	})
	if err == nil && !found {
		err = ErrInvalidToken
	}
	s.countAttempt("refresh", err)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.publish(&TokenRefreshedEvent{
		Sender:     senderFromContext(ctx, clientIP),
		TenantID:   owner.ID(),
		UserID:     ownerUID,
		OccurredAt: s.now(),
	})
	return pair, nil
}

// Revoke marks a single refresh token revoked wherever it lives.
func (s *AuthService) Revoke(ctx context.Context, token, clientIP string) error {
	ctx, span := tracer.Start(ctx, "auth.revoke")
	defer span.End()

	if token == "" {
		s.countAttempt("revoke", ErrInvalidToken)
		return ErrInvalidToken
	}
	var (
		owner    *tenant.Tenant
		ownerUID uuid.UUID
	)
	found, err := s.scanStores(ctx, func(ctx context.Context, t *tenant.Tenant) (bool, error) {
		rt, err := s.refresh.GetByToken(ctx, token)
		if errors.Is(err, refreshtoken.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		owner = t
		ownerUID = rt.UserID
		if rt.IsRevoked {
			return true, ErrInvalidToken
		}
		if err := s.refresh.Revoke(ctx, token, clientIP); err != nil {
			if errors.Is(err, refreshtoken.ErrAlreadyRevoked) {
				return true, ErrInvalidToken
			}
			return true, errors.Wrap(err, "revoke refresh token")
		}
		return true, nil
	})
	if err == nil && !found {
		err = ErrInvalidToken
	}
	s.countAttempt("revoke", err)
	if err != nil {
		recordError(span, err)
		return err
	}
	s.publish(&TokenRevokedEvent{
		Sender:     senderFromContext(ctx, clientIP),
		TenantID:   owner.ID(),
		UserID:     ownerUID,
		Count:      1,
		OccurredAt: s.now(),
	})
	return nil
}

// RevokeAllForUser revokes every active refresh token of userID in every
// active tenant store and returns how many were revoked.
func (s *AuthService) RevokeAllForUser(ctx context.Context, userID uuid.UUID, clientIP string) (int, error) {
	ctx, span := tracer.Start(ctx, "auth.revoke_all")
	defer span.End()

	revoked := make(map[uuid.UUID]int)
	_, err := s.scanStores(ctx, func(ctx context.Context, t *tenant.Tenant) (bool, error) {
		n, err := s.refresh.RevokeAllForUser(ctx, userID, clientIP)
		if err != nil {
			return false, err
		}
		if n > 0 {
			revoked[t.ID()] = n
		}
		return false, nil
	})
	s.countAttempt("revoke_all", err)
	if err != nil {
		recordError(span, err)
		return 0, err
	}

	total := 0
	for tenantID, n := range revoked {
		total += n
		s.publish(&TokenRevokedEvent{
			Sender:     senderFromContext(ctx, clientIP),
			TenantID:   tenantID,
			UserID:     userID,
			Count:      n,
			All:        true,
			OccurredAt: s.now(),
		})
	}
	return total, nil
}

// RevokeAllInTenant revokes every active refresh token of userID inside the
// store of tenantID only. A tenant that is no longer active has no reachable
// tokens, so it reports zero.
func (s *AuthService) RevokeAllInTenant(ctx context.Context, tenantID, userID uuid.UUID, clientIP string) (int, error) {
	ctx, span := tracer.Start(ctx, "auth.revoke_all", trace.WithAttributes(
		attribute.String("tenant.id", tenantID.String()),
	))
	defer span.End()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		err = ErrTenantNotFound
	}
	if err != nil {
		s.countAttempt("revoke_all", err)
		recordError(span, err)
		return 0, err
	}
	if !t.IsActive() {
		s.countAttempt("revoke_all", nil)
		return 0, nil
	}

	var n int
	err = s.scope.Run(ctx, t.StoreName(), func(ctx context.Context) error {
		var revokeErr error
		n, revokeErr = s.refresh.RevokeAllForUser(ctx, userID, clientIP)
		return revokeErr
	})
	s.countAttempt("revoke_all", err)
	if err != nil {
		recordError(span, err)
		return 0, errors.Wrap(err, "revoke refresh tokens")
	}
	if n > 0 {
		s.publish(&TokenRevokedEvent{
			Sender:     senderFromContext(ctx, clientIP),
			TenantID:   t.ID(),
			UserID:     userID,
			Count:      n,
			All:        true,
			OccurredAt: s.now(),
		})
	}
	return n, nil
}

// scanStores visits each active tenant store in its own scope until visit
// reports a match. A store that fails without matching is logged, counted
// and skipped; a cancelled context stops the scan. When visit matched, its
// error (or the scope's commit error) is returned as is.
func (s *AuthService) scanStores(ctx context.Context, visit func(ctx context.Context, t *tenant.Tenant) (bool, error)) (bool, error) {
	tenants, err := s.tenants.FindActive(ctx)
	if err != nil {
		return false, errors.Wrap(err, "list active tenants")
	}
	logger := composables.UseLogger(ctx)
	visited := 0
	defer func() {
		metrics.RefreshScanTenants.Observe(float64(visited))
	}()

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		visited++
		matched, err := s.visitStore(ctx, t, visit)
		if matched {
			return true, err
		}
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		metrics.StoreFaults.Inc()
		logger.WithError(err).
			WithField("tenant_id", t.ID().String()).
			Warn(ErrStoreAccessFault.Message)
	}
	return false, nil
}

func (s *AuthService) visitStore(ctx context.Context, t *tenant.Tenant, visit func(ctx context.Context, t *tenant.Tenant) (bool, error)) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.scan.store", trace.WithAttributes(
		attribute.String("tenant.id", t.ID().String()),
	))
	defer span.End()

	matched := false
	err := s.scope.Run(ctx, t.StoreName(), func(ctx context.Context) error {
		var visitErr error
		matched, visitErr = visit(ctx, t)
		return visitErr
	})
	if err != nil && !matched {
		recordError(span, err)
	}
	return matched, err
}

func (s *AuthService) issuePair(ctx context.Context, t *tenant.Tenant, u *user.User, ip string) (*TokenPair, error) {
	access, accessExp, err := s.tokens.Issue(subjectFor(t, u))
	if err != nil {
		return nil, err
	}
	rt, err := refreshtoken.New(u.ID(), s.refreshTTL, ip)
	if err != nil {
		return nil, errors.Wrap(err, "generate refresh token")
	}
	if err := s.refresh.Create(ctx, rt); err != nil {
		return nil, errors.Wrap(err, "persist refresh token")
	}
	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          rt.Token,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: rt.ExpiresAt,
	}, nil
}

func subjectFor(t *tenant.Tenant, u *user.User) TokenSubject {
	return TokenSubject{
		UserID:      u.ID(),
		Email:       u.Email(),
		TenantID:    t.ID(),
		StoreName:   t.StoreName(),
		PlanID:      t.PlanID(),
		Roles:       u.RoleNames(),
		Permissions: u.Permissions(),
	}
}

func (s *AuthService) loginFailed(ctx context.Context, p LoginParams, tenantID uuid.UUID, err error) error {
	s.countAttempt("login", err)
	reason, _ := serrors.Code(err)
	if reason == "" {
		reason = "error"
	}
	s.publish(&LoginFailedEvent{
		Sender:     senderFromContext(ctx, p.ClientIP),
		TenantID:   tenantID,
		RoutingKey: p.RoutingKey,
		Email:      user.NormalizeEmail(p.Email),
		Reason:     reason,
		OccurredAt: s.now(),
	})
	return err
}

func (s *AuthService) countAttempt(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if code, ok := serrors.Code(err); ok {
			result = code
		}
	}
	metrics.AuthAttempts.WithLabelValues(operation, result).Inc()
}

func (s *AuthService) publish(event interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package services

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/pkg/composables"
)

// Claims is the access token payload. The tenant is carried so that any
// later request can be routed without a session lookup.
type Claims struct {
	TenantID    string   `json:"tenant_id"`
	TenantStore string   `json:"tenant_store"`
	PlanID      string   `json:"plan_id,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity() (*composables.Identity, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, ErrInvalidToken.WithDetail("subject is not a uuid")
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil, ErrInvalidToken.WithDetail("tenant_id is not a uuid")
	}
	return &composables.Identity{
		UserID:      userID,
		TenantID:    tenantID,
		StoreName:   c.TenantStore,
		PlanID:      c.PlanID,
		Email:       c.Email,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}, nil
}

type TokenSubject struct {
	UserID      uuid.UUID
	Email       string
	TenantID    uuid.UUID
	StoreName   string
	PlanID      string
	Roles       []string
	Permissions []string
}

// TokenService signs and verifies HS256 access tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) Issue(subject TokenSubject) (string, time.Time, error) {
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	roles := subject.Roles
	if roles == nil {
		roles = []string{}
	}
	permissions := subject.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	claims := &Claims{
		TenantID:    subject.TenantID.String(),
		TenantStore: subject.StoreName,
		PlanID:      subject.PlanID,
		Email:       subject.Email,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign access token")
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (s *TokenService) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken.WithDetail(err.Error())
	}
	return claims, nil
}

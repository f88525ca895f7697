package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
)

type User struct {
	id           uuid.UUID
	email        string
	passwordHash string
	isActive     bool
	firstName    string
	lastName     string
	roles        []*role.Role
	createdAt    time.Time
	updatedAt    time.Time
}

type Option func(*User)

func WithID(id uuid.UUID) Option {
	return func(u *User) {
		u.id = id
	}
}

func WithPasswordHash(hash string) Option {
	return func(u *User) {
		u.passwordHash = hash
	}
}

func WithName(firstName, lastName string) Option {
	return func(u *User) {
		u.firstName = firstName
		u.lastName = lastName
	}
}

func WithActive(active bool) Option {
	return func(u *User) {
		u.isActive = active
	}
}

func WithRoles(roles ...*role.Role) Option {
	return func(u *User) {
		u.roles = append(u.roles, roles...)
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(u *User) {
		u.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(u *User) {
		u.updatedAt = updatedAt
	}
}

// New returns an active user. Emails are stored lower-cased.
func New(email string, opts ...Option) *User {
	now := time.Now()
	u := &User{
		id:        uuid.New(),
		email:     NormalizeEmail(email),
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) ID() uuid.UUID {
	return u.id
}

func (u *User) Email() string {
	return u.email
}

func (u *User) PasswordHash() string {
	return u.passwordHash
}

func (u *User) IsActive() bool {
	return u.isActive
}

func (u *User) FirstName() string {
	return u.firstName
}

func (u *User) LastName() string {
	return u.lastName
}

func (u *User) Roles() []*role.Role {
	return append([]*role.Role(nil), u.roles...)
}

func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

func (u *User) UpdatedAt() time.Time {
	return u.updatedAt
}

// RoleNames and Permissions flatten the assigned roles into sorted sets.
func (u *User) RoleNames() []string {
	return role.Names(u.roles)
}

func (u *User) Permissions() []string {
	return role.FlattenPermissions(u.roles)
}

func (u *User) CheckPassword(password string) bool {
	if u.passwordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) == nil
}

// SetPassword replaces the stored hash.
func (u *User) SetPassword(password string, cost int) error {
	hash, err := HashPassword(password, cost)
	if err != nil {
		return err
	}
	u.passwordHash = hash
	u.updatedAt = time.Now()
	return nil
}

func (u *User) Deactivate() {
	u.isActive = false
	u.updatedAt = time.Now()
}

func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

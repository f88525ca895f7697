package role

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

type Role struct {
	id          uuid.UUID
	name        string
	permissions []string
}

type Option func(*Role)

func WithID(id uuid.UUID) Option {
	return func(r *Role) {
		r.id = id
	}
}

func WithPermissions(codes ...string) Option {
	return func(r *Role) {
		r.permissions = append(r.permissions, codes...)
	}
}

func New(name string, opts ...Option) *Role {
	r := &Role{
		id:   uuid.New(),
		name: strings.TrimSpace(name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Role) ID() uuid.UUID {
	return r.id
}

func (r *Role) Name() string {
	return r.name
}

func (r *Role) Permissions() []string {
	return append([]string(nil), r.permissions...)
}

// Names returns the sorted, de-duplicated role names.
func Names(roles []*Role) []string {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r.name != "" {
			set[r.name] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// FlattenPermissions is the set union of every role's permission codes, sorted.
func FlattenPermissions(roles []*Role) []string {
	set := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range r.permissions {
			if p = strings.TrimSpace(p); p != "" {
				set[p] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

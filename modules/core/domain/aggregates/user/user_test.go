package user

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
)

func TestNew_NormalizesEmail(t *testing.T) {
	u := New("  Alice@Acme.COM ")
	require.Equal(t, "alice@acme.com", u.Email())
	require.True(t, u.IsActive())
}

func TestPassword_RoundTrip(t *testing.T) {
	u := New("alice@acme.com")
	require.False(t, u.CheckPassword("anything"))

	require.NoError(t, u.SetPassword("s3cret", bcrypt.MinCost))
	require.True(t, u.CheckPassword("s3cret"))
	require.False(t, u.CheckPassword("S3cret"))
}

func TestPermissions_FlattenedFromRoles(t *testing.T) {
	u := New("alice@acme.com", WithRoles(
		role.New("admin", role.WithPermissions("users.write", "users.read")),
		role.New("viewer", role.WithPermissions("users.read")),
	))
	require.Equal(t, []string{"admin", "viewer"}, u.RoleNames())
	require.Equal(t, []string{"users.read", "users.write"}, u.Permissions())
}

func TestDeactivate(t *testing.T) {
	u := New("bob@acme.com", WithActive(true))
	u.Deactivate()
	require.False(t, u.IsActive())
}

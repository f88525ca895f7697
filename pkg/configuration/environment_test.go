package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "TENANTGATE_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "middleware")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	chdir(t, sub)

	_ = os.Unsetenv("TENANTGATE_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("TENANTGATE_TEST_ENV_LOAD"))
}

func TestNew_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, c.Tenancy.CacheSlidingTTL)
	require.Equal(t, 30*time.Minute, c.Tenancy.CacheAbsoluteTTL)
	require.Equal(t, []string{"www", "api"}, c.Tenancy.ReservedSubdomains)
	require.False(t, c.Tenancy.QueryParamEnabled)
	require.Equal(t, "X-Tenant-Id", c.Tenancy.HeaderName)
	require.GreaterOrEqual(t, len(c.Auth.JWTSecret), minSecretLength)
	require.NotNil(t, c.Logger())
}

func TestNew_RejectsSlidingLongerThanAbsolute(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANT_CACHE_SLIDING_TTL", "40m")
	t.Setenv("TENANT_CACHE_ABSOLUTE_TTL", "30m")

	_, err := New(nil)
	require.ErrorContains(t, err, "TENANT_CACHE_SLIDING_TTL")
}

func TestNew_ProductionRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GO_APP_ENV", Production)
	t.Setenv("JWT_SECRET", "short")

	_, err := New(nil)
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestRateLimitOptions_Validate(t *testing.T) {
	opts := RateLimitOptions{Storage: "redis"}
	require.Error(t, opts.Validate())

	opts.RedisURL = "redis://localhost:6379/0"
	require.NoError(t, opts.Validate())

	opts.Storage = "disk"
	require.Error(t, opts.Validate())
}

func TestValidStoreName(t *testing.T) {
	require.True(t, ValidStoreName("tenant_acme"))
	require.False(t, ValidStoreName("Tenant-Acme"))
	require.False(t, ValidStoreName("1acme"))
	require.False(t, ValidStoreName("acme; drop schema public"))
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// chdir stands in for testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

package middleware_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
	"github.com/iota-uz/tenantgate/pkg/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func loggerOptions() middleware.LoggerOptions {
	opts := middleware.DefaultLoggerOptions()
	opts.RequestIDHeader = "X-Request-ID"
	opts.RealIPHeader = "X-Real-IP"
	return opts
}

type gateFixture struct {
	repo     tenant.Repository
	resolver *services.TenantResolver
	tenants  map[tenant.Status]*tenant.Tenant
}

// newGateFixture registers one tenant per lifecycle status, keyed by the
// status name.
func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	store := persistence.NewInMemoryStore()
	repo := store.Tenants()
	f := &gateFixture{
		repo:     repo,
		resolver: services.NewTenantResolver(repo, services.NewTenantCache(time.Minute, time.Hour), services.TenantResolverConfig{ReservedSubdomains: []string{"www", "api"}}),
		tenants:  map[tenant.Status]*tenant.Tenant{},
	}
	for _, status := range []tenant.Status{
		tenant.StatusProvisioning,
		tenant.StatusActive,
		tenant.StatusSuspended,
		tenant.StatusTerminated,
	} {
		created, err := repo.Create(context.Background(), tenant.New(
			string(status), "store_"+string(status),
			tenant.WithRoutingKeys(string(status)),
			tenant.WithStatus(status),
			tenant.WithPlanID("free"),
		))
		require.NoError(t, err)
		f.tenants[status] = created
	}
	return f
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpapi.ErrorEnvelope {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newRouter(mws ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mws...)
	return r
}

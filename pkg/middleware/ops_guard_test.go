package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/middleware"
	"github.com/iota-uz/tenantgate/pkg/routing"
)

func opsConfig(trustProxy bool) *configuration.Configuration {
	conf := &configuration.Configuration{
		GoAppEnvironment: configuration.Production,
		OpsGuardEnabled:  true,
		OpsGuardCIDRs:    "203.0.113.0/24",
		OpsGuardToken:    "secret",
		RealIPHeader:     "X-Real-IP",
	}
	conf.Tenancy.TrustProxy = trustProxy
	return conf
}

func TestOpsGuard(t *testing.T) {
	t.Parallel()
	classifier := routing.NewClassifier(routing.DefaultRules())

	cases := []struct {
		name       string
		trustProxy bool
		remote     string
		headers    map[string]string
		path       string
		want       int
	}{
		{name: "peer inside cidr", remote: "203.0.113.7:1000", path: "/metrics", want: http.StatusOK},
		{name: "peer outside cidr", remote: "198.51.100.1:1000", path: "/metrics", want: http.StatusNotFound},
		{
			name:    "forged header without trusted proxy",
			remote:  "198.51.100.1:1000",
			headers: map[string]string{"X-Real-IP": "203.0.113.7"},
			path:    "/metrics",
			want:    http.StatusNotFound,
		},
		{
			name:       "header from trusted proxy",
			trustProxy: true,
			remote:     "10.0.0.1:1000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			path:       "/metrics",
			want:       http.StatusOK,
		},
		{
			name:    "ops token",
			remote:  "198.51.100.1:1000",
			headers: map[string]string{"X-Ops-Token": "secret"},
			path:    "/health",
			want:    http.StatusOK,
		},
		{
			name:    "bearer ops token",
			remote:  "198.51.100.1:1000",
			headers: map[string]string{"Authorization": "Bearer secret"},
			path:    "/health",
			want:    http.StatusOK,
		},
		{name: "non ops route", remote: "198.51.100.1:1000", path: "/api/v1/me", want: http.StatusOK},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := middleware.OpsGuard(opsConfig(tc.trustProxy), classifier)(http.HandlerFunc(ok))

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestOpsGuard_OpenOutsideProduction(t *testing.T) {
	t.Parallel()
	conf := opsConfig(false)
	conf.GoAppEnvironment = "development"
	handler := middleware.OpsGuard(conf, routing.NewClassifier(routing.DefaultRules()))(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "198.51.100.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

package routinggates

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	internalserver "github.com/iota-uz/tenantgate/internal/server"
	"github.com/iota-uz/tenantgate/modules"
	"github.com/iota-uz/tenantgate/modules/core"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/routing"
	pkgserver "github.com/iota-uz/tenantgate/pkg/server"
)

func TestServerRoutes_NoUnversionedAPIExceptAllowlist(t *testing.T) {
	srv, _ := buildServer(t, configuration.Production)
	classifier := routing.NewClassifier(routing.DefaultRules())

	var offending []string
	for _, p := range collectRoutePaths(t, srv.Router()) {
		if !routing.HasPathPrefixOnBoundary(p, "/api") {
			continue
		}
		if routing.HasPathPrefixOnBoundary(p, "/api/v1") {
			continue
		}
		if _, ok := classifier.MatchAllowlist(p); ok {
			continue
		}
		offending = append(offending, p)
	}
	if len(offending) > 0 {
		t.Fatalf("unversioned /api routes outside the allowlist:\n%s", strings.Join(offending, "\n"))
	}
}

func TestServerRoutes_TopLevelExceptionsMustBeAllowlisted(t *testing.T) {
	srv, _ := buildServer(t, configuration.Production)
	classifier := routing.NewClassifier(routing.DefaultRules())

	var offending []string
	for _, p := range collectRoutePaths(t, srv.Router()) {
		if p == "/" || routing.HasPathPrefixOnBoundary(p, "/api") {
			continue
		}
		if _, ok := classifier.MatchAllowlist(p); ok {
			continue
		}
		offending = append(offending, p)
	}
	if len(offending) > 0 {
		t.Fatalf("top-level routes missing from the allowlist:\n%s", strings.Join(offending, "\n"))
	}
}

func TestExposureBaseline_Production_DoesNotRegisterDevRoutes(t *testing.T) {
	srv, _ := buildServer(t, configuration.Production)

	for _, p := range collectRoutePaths(t, srv.Router()) {
		require.False(t, routing.HasPathPrefixOnBoundary(p, "/_dev"), "dev route registered: %s", p)
	}
}

func TestExposureBaseline_OpsGuard(t *testing.T) {
	srv, conf := buildServer(t, configuration.Production)
	conf.OpsGuardToken = "secret"

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/health", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/health", nil)
	req.Header.Set("X-Ops-Token", "secret")
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIErrorContracts_JSONOnly_For404And405(t *testing.T) {
	srv, _ := buildServer(t, "development")

	t.Run("404", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/__nonexistent__", nil))

		require.Equal(t, http.StatusNotFound, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		payload := decodeAPIError(t, rr)
		require.Equal(t, "NOT_FOUND", payload.Code)
		require.Equal(t, "/api/v1/__nonexistent__", payload.Meta["path"])
		require.NotEmpty(t, payload.Meta["request_id"])
	})

	t.Run("405", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "http://example.com/health", nil))

		require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		payload := decodeAPIError(t, rr)
		require.Equal(t, "METHOD_NOT_ALLOWED", payload.Code)
		require.Equal(t, http.MethodPut, payload.Meta["method"])
	})

	t.Run("405_rate_limited_login", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/auth/login", nil))

		require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		require.Equal(t, "METHOD_NOT_ALLOWED", decodeAPIError(t, rr).Code)
	})
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta"`
}

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) apiError {
	t.Helper()
	var payload apiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
	return payload
}

func buildServer(t *testing.T, env string) (*pkgserver.HTTPServer, *configuration.Configuration) {
	t.Helper()

	conf, err := configuration.New(nil)
	require.NoError(t, err)
	t.Cleanup(conf.Unload)
	conf.GoAppEnvironment = env
	conf.OpsGuardEnabled = true
	conf.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	app := application.New(&application.ApplicationOptions{Logger: logger})
	require.NoError(t, modules.Load(app, core.NewModule(&core.ModuleOptions{
		Config: conf,
		Memory: persistence.NewInMemoryStore(),
	})))

	srv, err := internalserver.Default(&internalserver.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
	})
	require.NoError(t, err)
	return srv, conf
}

func collectRoutePaths(t *testing.T, router *mux.Router) []string {
	t.Helper()

	var paths []string
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if tmpl, err := route.GetPathTemplate(); err == nil && strings.TrimSpace(tmpl) != "" {
			paths = append(paths, tmpl)
		}
		return nil
	})
	require.NoError(t, err)

	sort.Strings(paths)
	return paths
}

package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/middleware"
)

func TestWithLogger_RecoversPanicAsJSON(t *testing.T) {
	t.Parallel()
	handler := middleware.WithLogger(quietLogger(), loggerOptions())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "INTERNAL_SERVER_ERROR", env.Code)
	require.Equal(t, "req-1", env.Meta["request_id"])
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
}

func TestWithLogger_ProvidesParamsAndLogger(t *testing.T) {
	t.Parallel()
	var (
		params *composables.Params
		entry  *logrus.Entry
	)
	opts := loggerOptions()
	opts.TrustProxy = true
	handler := middleware.WithLogger(quietLogger(), opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, _ = composables.UseParams(r.Context())
		entry = composables.UseLogger(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	req.Header.Set("User-Agent", "curl/8.4")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, params)
	require.Equal(t, "203.0.113.9", params.IP)
	require.Equal(t, "curl/8.4", params.UserAgent)
	require.NotEmpty(t, params.RequestID)
	require.Equal(t, params.RequestID, entry.Data["request-id"])
}

func TestWithLogger_UsesPeerAddressWithoutTrustedProxy(t *testing.T) {
	t.Parallel()
	var params *composables.Params
	handler := middleware.WithLogger(quietLogger(), loggerOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, _ = composables.UseParams(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5500"
	req.Header.Set("X-Real-IP", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, params)
	require.Equal(t, "192.0.2.10", params.IP)
}

func TestWithLogger_RejectsOversizedBody(t *testing.T) {
	t.Parallel()
	reached := false
	opts := loggerOptions()
	opts.MaxRequestBodyBytes = 32
	handler := middleware.WithLogger(quietLogger(), opts)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	body := `{"refreshToken":"` + strings.Repeat("a", 1024) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.False(t, reached)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "REQUEST_TOO_LARGE", decodeEnvelope(t, rec).Code)
}

func TestWithLogger_CapsBodyWhenNotLogging(t *testing.T) {
	t.Parallel()
	var readErr error
	opts := loggerOptions()
	opts.LogRequestBody = false
	opts.MaxRequestBodyBytes = 32
	handler := middleware.WithLogger(quietLogger(), opts)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1024)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, readErr, &tooLarge)
}

func TestWithLogger_RedactsSecrets(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	handler := middleware.WithLogger(logger, loggerOptions())(http.HandlerFunc(ok))

	body := `{"email":"alice@acme.com","password":"hunter2","nested":{"refreshToken":"abc"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEmpty(t, hook.AllEntries())
	for _, e := range hook.AllEntries() {
		line, err := e.String()
		require.NoError(t, err)
		require.NotContains(t, line, "hunter2")
		require.NotContains(t, line, "secret-token")
		require.NotContains(t, line, `"abc"`)
	}
}

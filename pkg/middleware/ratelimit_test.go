package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/middleware"
	"github.com/iota-uz/tenantgate/pkg/ratelimit"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func withTenantParams(r *http.Request, tenantID, planID string) *http.Request {
	params := &composables.Params{IP: "10.0.0.1", TenantID: tenantID, PlanID: planID}
	return r.WithContext(composables.WithParams(r.Context(), params))
}

func TestIPRateLimitPeriod(t *testing.T) {
	t.Parallel()
	handler := middleware.IPRateLimitPeriod(2, time.Minute)(http.HandlerFunc(ok))

	serve := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, serve("192.0.2.1:1234").Code)
	rec := serve("192.0.2.1:5678")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve("192.0.2.1:9999")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMITED", decodeEnvelope(t, rec).Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, serve("192.0.2.2:1234").Code)
}

func TestRateLimit_EndpointKeysAreSeparate(t *testing.T) {
	t.Parallel()
	store := middleware.NewMemoryStore()
	login := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerPeriod: 1, Period: time.Minute, Store: store, KeyFunc: middleware.EndpointKeyFunc("login"),
	})(http.HandlerFunc(ok))
	refresh := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerPeriod: 1, Period: time.Minute, Store: store, KeyFunc: middleware.EndpointKeyFunc("refresh"),
	})(http.HandlerFunc(ok))

	serve := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, serve(login))
	require.Equal(t, http.StatusOK, serve(refresh))
	require.Equal(t, http.StatusTooManyRequests, serve(login))
}

func TestTenantRateLimit_PerPlanPolicies(t *testing.T) {
	t.Parallel()
	plans, err := ratelimit.ParsePlans("free:fixed:2-M,pro:token:0.001/3")
	require.NoError(t, err)
	set := ratelimit.NewSet(
		ratelimit.Policy{Kind: ratelimit.KindFixed, Limit: 1, Period: time.Minute},
		ratelimit.Policy{Kind: ratelimit.KindFixed, Limit: 1, Period: time.Minute},
		plans,
		middleware.NewMemoryStore(),
	)
	handler := middleware.TenantRateLimit(middleware.TenantRateLimitConfig{Limiters: set})(http.HandlerFunc(ok))

	allowed := func(tenantID, planID, path string, n int) int {
		count := 0
		for i := 0; i < n; i++ {
			req := withTenantParams(httptest.NewRequest(http.MethodGet, path, nil), tenantID, planID)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				count++
			}
		}
		return count
	}

	freeTenant := uuid.NewString()
	proTenant := uuid.NewString()
	otherFree := uuid.NewString()

	require.Equal(t, 2, allowed(freeTenant, "free", "/api/v1/items", 5))
	require.Equal(t, 3, allowed(proTenant, "pro", "/api/v1/items", 5))
	require.Equal(t, 2, allowed(otherFree, "free", "/api/v1/items", 5), "tenants do not share counters")
	require.Equal(t, 1, allowed(uuid.NewString(), "unknown-plan", "/api/v1/items", 5))

	// AI paths draw from their own stricter budget even when the plan one is spent.
	require.Equal(t, 1, allowed(freeTenant, "free", "/api/v1/ai/chat", 3))
}

func TestTenantRateLimit_FallsBackToIdentityThenIP(t *testing.T) {
	t.Parallel()
	set := ratelimit.NewSet(
		ratelimit.Policy{Kind: ratelimit.KindFixed, Limit: 1, Period: time.Minute},
		ratelimit.Policy{Kind: ratelimit.KindFixed, Limit: 1, Period: time.Minute},
		nil,
		middleware.NewMemoryStore(),
	)
	handler := middleware.TenantRateLimit(middleware.TenantRateLimitConfig{Limiters: set})(http.HandlerFunc(ok))

	identity := &composables.Identity{UserID: uuid.New(), TenantID: uuid.New()}
	serveAs := func(withIdentity bool) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		if withIdentity {
			req = req.WithContext(composables.WithIdentity(req.Context(), identity))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serveAs(true))
	require.Equal(t, http.StatusTooManyRequests, serveAs(true))
	// Same client ip, but anonymous requests are keyed by ip.
	require.Equal(t, http.StatusOK, serveAs(false))
	require.Equal(t, http.StatusTooManyRequests, serveAs(false))
}

func TestIPRateLimitPeriod_IgnoresClientIPHeaderWithoutTrustedProxy(t *testing.T) {
	t.Parallel()
	handler := middleware.WithLogger(quietLogger(), loggerOptions())(
		middleware.IPRateLimitPeriod(2, time.Minute)(http.HandlerFunc(ok)),
	)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.50:4100"
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestIPRateLimitPeriod_TrustedProxyKeysByForwardedClient(t *testing.T) {
	t.Parallel()
	opts := loggerOptions()
	opts.TrustProxy = true
	handler := middleware.WithLogger(quietLogger(), opts)(
		middleware.IPRateLimitPeriod(1, time.Minute)(http.HandlerFunc(ok)),
	)

	serve := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:4100"
		req.Header.Set("X-Real-IP", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, serve("203.0.113.1"))
	require.Equal(t, http.StatusOK, serve("203.0.113.2, 10.0.0.9"))
	require.Equal(t, http.StatusTooManyRequests, serve("203.0.113.1"))
}

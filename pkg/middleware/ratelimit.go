package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
	"github.com/iota-uz/tenantgate/pkg/metrics"
	"github.com/iota-uz/tenantgate/pkg/ratelimit"
	"github.com/iota-uz/tenantgate/pkg/routing"
)

// KeyFunc derives the bucket key of a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	KeyFunc           KeyFunc
}

func NewMemoryStore() limiter.Store {
	return ratelimit.NewMemoryStore()
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	return ratelimit.NewRedisStore(redisURL)
}

// ClientIPKey keys by the client address recorded in the request params.
func ClientIPKey(r *http.Request) string {
	if ip, ok := composables.UseIP(r.Context()); ok {
		return "ip:" + ip
	}
	if ip, ok := stripPort(r.RemoteAddr); ok {
		return "ip:" + ip
	}
	return ""
}

// EndpointKeyFunc scopes the client ip key to one endpoint so that separate
// limits do not share a counter.
func EndpointKeyFunc(endpoint string) KeyFunc {
	return func(r *http.Request) string {
		key := ClientIPKey(r)
		if key == "" {
			return ""
		}
		return endpoint + ":" + key
	}
}

// RateLimit applies one fixed window to every request.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIPKey
	}
	l := ratelimit.NewFixedWindow(ratelimit.Policy{
		Kind:   ratelimit.KindFixed,
		Limit:  int64(cfg.RequestsPerPeriod),
		Period: cfg.Period,
	}, cfg.Store)
	keyFunc := cfg.KeyFunc
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" || cfg.RequestsPerPeriod <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if enforce(w, r, l, key) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// IPRateLimitPeriod limits each client ip to n requests per period.
func IPRateLimitPeriod(n int, period time.Duration) mux.MiddlewareFunc {
	return RateLimit(RateLimitConfig{
		RequestsPerPeriod: n,
		Period:            period,
		KeyFunc:           EndpointKeyFunc("ip-period"),
	})
}

type TenantRateLimitConfig struct {
	Limiters   *ratelimit.Set
	Classifier *routing.Classifier
}

// TenantRateLimit picks the plan policy of the request's tenant. Requests
// without a tenant are keyed by client ip on the default policy; AI paths use
// their own stricter counters.
func TenantRateLimit(cfg TenantRateLimitConfig) mux.MiddlewareFunc {
	if cfg.Classifier == nil {
		cfg.Classifier = routing.NewClassifier(routing.DefaultRules())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, planID := tenantKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			l := cfg.Limiters.ForPlan(planID)
			if cfg.Classifier.IsAI(r.URL.Path) {
				l = cfg.Limiters.AI
				key = "ai:" + key
			}
			key = string(l.Policy().Kind) + ":" + key
			if enforce(w, r, l, key) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func tenantKey(r *http.Request) (string, string) {
	ctx := r.Context()
	if p, ok := composables.UseParams(ctx); ok && p.TenantID != "" {
		return "tenant:" + p.TenantID, p.PlanID
	}
	if identity, err := composables.UseIdentity(ctx); err == nil {
		return "tenant:" + identity.TenantID.String(), identity.PlanID
	}
	return ClientIPKey(r), ""
}

// enforce consumes one request from l and writes the 429 when the limit is
// reached. A limiter store failure lets the request through.
func enforce(w http.ResponseWriter, r *http.Request, l ratelimit.Limiter, key string) bool {
	res, err := l.Allow(r.Context(), key)
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("rate limiter unavailable, allowing request")
		return true
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
	if res.Allowed {
		return true
	}
	metrics.RateLimited.WithLabelValues(string(l.Policy().Kind)).Inc()
	retry := int(time.Until(res.Reset).Seconds())
	if retry < 1 {
		retry = 1
	}
	h.Set("Retry-After", strconv.Itoa(retry))
	_ = httpapi.WriteServiceError(w, services.ErrRateLimited, services.HTTPStatus)
	return false
}

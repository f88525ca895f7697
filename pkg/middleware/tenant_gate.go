package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
	"github.com/iota-uz/tenantgate/pkg/metrics"
	"github.com/iota-uz/tenantgate/pkg/routing"
)

const defaultRetryAfter = 30 * time.Second

type TenantResolver interface {
	Resolve(r *http.Request) (services.Resolution, error)
}

type AccessGateOptions struct {
	// Requests whose path the classifier marks as bypassing tenant
	// resolution skip the gate entirely.
	Classifier *routing.Classifier
	RetryAfter time.Duration
}

// AccessGate resolves the tenant of every non-bypassed request and admits it
// only when the tenant is active, attaching a fresh TenantContext.
func AccessGate(resolver TenantResolver, opts AccessGateOptions) mux.MiddlewareFunc {
	if opts.Classifier == nil {
		opts.Classifier = routing.NewClassifier(routing.DefaultRules())
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}
	retryAfter := strconv.Itoa(int(opts.RetryAfter.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Classifier.SkipsTenantResolution(r.URL.Path) {
				metrics.GateDecisions.WithLabelValues("bypass").Inc()
				next.ServeHTTP(w, r)
				return
			}

			logger := composables.UseLogger(r.Context())
			res, err := resolver.Resolve(r)
			if err != nil {
				metrics.GateDecisions.WithLabelValues("fault").Inc()
				logger.WithError(err).WithField("tenant_key", res.Key).Error("tenant registry lookup failed")
				_ = httpapi.WriteError(w, http.StatusServiceUnavailable, httpapi.CodeServiceUnavailable, "service temporarily unavailable", nil)
				return
			}

			switch res.Outcome {
			case services.OutcomeMissing:
				metrics.GateDecisions.WithLabelValues(res.Outcome.String()).Inc()
				next.ServeHTTP(w, r)
				return
			case services.OutcomeNotFound:
				metrics.GateDecisions.WithLabelValues(res.Outcome.String()).Inc()
				_ = httpapi.WriteServiceError(w, services.ErrTenantNotFound, services.HTTPStatus)
				return
			}

			t := res.Tenant
			metrics.GateDecisions.WithLabelValues(t.Status().String()).Inc()
			switch t.Status() {
			case tenant.StatusActive:
			case tenant.StatusProvisioning:
				w.Header().Set("Retry-After", retryAfter)
				_ = httpapi.WriteServiceError(w, services.ErrTenantProvisioning, services.HTTPStatus)
				return
			case tenant.StatusSuspended:
				_ = httpapi.WriteServiceError(w, services.ErrTenantSuspended, services.HTTPStatus)
				return
			case tenant.StatusTerminated:
				_ = httpapi.WriteServiceError(w, services.ErrTenantTerminated, services.HTTPStatus)
				return
			default:
				logger.WithField("tenant_id", t.ID()).Errorf("tenant has unknown status %q", t.Status())
				_ = httpapi.WriteError(w, http.StatusServiceUnavailable, httpapi.CodeServiceUnavailable, "service temporarily unavailable", nil)
				return
			}

			ctx, err := composables.WithTenant(r.Context(), composables.TenantContext{
				TenantID:  t.ID(),
				StoreName: t.StoreName(),
				PlanID:    t.PlanID(),
			})
			if err != nil {
				logger.WithError(err).WithField("tenant_id", t.ID()).Error("tenant context conflict")
				_ = httpapi.WriteServiceError(w, services.ErrTenantRequired, services.HTTPStatus)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant fails closed on routes that cannot run without a tenant.
func RequireTenant() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := composables.UseTenant(r.Context()); err != nil {
				_ = httpapi.WriteServiceError(w, services.ErrTenantRequired, services.HTTPStatus)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

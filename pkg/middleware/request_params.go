package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/configuration"
)

// RequestParams makes sure every request carries its own item bag. WithLogger
// already creates one; this covers routers mounted without it.
func RequestParams() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := composables.UseParams(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			conf := configuration.Use()
			ip, _ := clientIP(r, conf.RealIPHeader, conf.Tenancy.TrustProxy)
			params := &composables.Params{
				IP:        ip,
				UserAgent: r.UserAgent(),
				RequestID: getRequestID(r, conf.RequestIDHeader),
			}
			next.ServeHTTP(w, r.WithContext(composables.WithParams(r.Context(), params)))
		})
	}
}

// Provide stores an arbitrary value in the request context.
func Provide(k interface{}, v interface{}) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), k, v)))
		})
	}
}

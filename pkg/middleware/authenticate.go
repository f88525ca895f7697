package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
)

type TokenParser interface {
	Parse(raw string) (*services.Claims, error)
}

// Authenticate attaches the identity of a valid bearer token. It never
// rejects: a missing or bad token leaves the request anonymous and routes
// that need an identity add RequireAuth.
func Authenticate(tokens TokenParser) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			logger := composables.UseLogger(r.Context())
			claims, err := tokens.Parse(raw)
			if err != nil {
				logger.WithError(err).Debug("ignoring invalid bearer token")
				next.ServeHTTP(w, r)
				return
			}
			identity, err := claims.Identity()
			if err != nil {
				logger.WithError(err).Debug("ignoring bearer token with malformed claims")
				next.ServeHTTP(w, r)
				return
			}
			ctx := composables.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := composables.UseIdentity(r.Context()); err != nil {
				_ = httpapi.WriteServiceError(w, services.ErrUnauthenticated, services.HTTPStatus)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

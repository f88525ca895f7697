package server

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/tenantgate/modules/core/presentation/controllers"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/constants"
	"github.com/iota-uz/tenantgate/pkg/middleware"
	"github.com/iota-uz/tenantgate/pkg/ratelimit"
	"github.com/iota-uz/tenantgate/pkg/routing"
	"github.com/iota-uz/tenantgate/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Entrypoint    string
	// RateLimitStore overrides the store chosen from configuration.
	RateLimitStore limiter.Store
}

// Default assembles the request pipeline: logging and tracing, CORS, bearer
// authentication, the tenant access gate and the per-plan rate limiter. The
// core module must be registered on the application first.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	if options.Entrypoint == "" {
		options.Entrypoint = "server"
	}
	classifier := routing.NewClassifier(routing.LoadAllowlistOrDefault(conf.AllowlistPath, options.Entrypoint))

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader
	loggerOpts.TrustProxy = conf.Tenancy.TrustProxy

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),

		middleware.TracedMiddleware("app"),
		middleware.Provide(constants.AppKey, app),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.Origin),

		middleware.TracedMiddleware("requestParams"),
		middleware.RequestParams(),

		middleware.OpsGuard(conf, classifier),

		middleware.TracedMiddleware("authenticate"),
		middleware.Authenticate(app.Service(services.TokenService{}).(*services.TokenService)),

		middleware.TracedMiddleware("accessGate"),
		middleware.AccessGate(app.Service(services.TenantResolver{}).(*services.TenantResolver), middleware.AccessGateOptions{
			Classifier: classifier,
			RetryAfter: conf.Tenancy.RetryAfter,
		}),
	}

	if conf.RateLimit.Enabled {
		set, err := rateLimiters(options)
		if err != nil {
			return nil, err
		}
		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.TenantRateLimit(middleware.TenantRateLimitConfig{
				Limiters:   set,
				Classifier: classifier,
			}),
		)
	}

	app.RegisterMiddleware(middlewares...)

	serverInstance := server.NewHTTPServer(
		app,
		controllers.NotFound(),
		controllers.MethodNotAllowed(),
	)
	return serverInstance, nil
}

func rateLimiters(options *DefaultOptions) (*ratelimit.Set, error) {
	conf := options.Configuration.RateLimit
	defaultPolicy, err := ratelimit.ParsePolicy(conf.DefaultPolicy)
	if err != nil {
		return nil, err
	}
	aiPolicy, err := ratelimit.ParsePolicy(conf.AIPolicy)
	if err != nil {
		return nil, err
	}
	plans, err := ratelimit.ParsePlans(conf.Plans)
	if err != nil {
		return nil, err
	}

	store := options.RateLimitStore
	if store == nil {
		switch conf.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}
	}
	return ratelimit.NewSet(defaultPolicy, aiPolicy, plans, store), nil
}

package core

import (
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/handlers"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
	"github.com/iota-uz/tenantgate/modules/core/presentation/controllers"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/configuration"
)

type ModuleOptions struct {
	Config *configuration.Configuration
	// Memory replaces Postgres when the application has no pool.
	Memory *persistence.InMemoryStore
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{
		options: opts,
	}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Name() string {
	return "core"
}

func (m *Module) Register(app application.Application) error {
	cfg := m.options.Config
	if cfg == nil {
		cfg = configuration.Use()
	}

	var (
		tenantRepo  tenant.Repository
		userRepo    user.Repository
		refreshRepo refreshtoken.Repository
		scope       services.StoreScope
		health      controllers.Pinger
	)
	if pool := app.DB(); pool != nil {
		tenantRepo = persistence.NewTenantRepository(pool)
		userRepo = persistence.NewUserRepository()
		refreshRepo = persistence.NewRefreshTokenRepository()
		scope = persistence.NewPgStoreScope(pool)
		health = pool
	} else {
		mem := m.options.Memory
		if mem == nil {
			mem = persistence.NewInMemoryStore()
		}
		tenantRepo = mem.Tenants()
		userRepo = mem.Users()
		refreshRepo = mem.RefreshTokens()
		scope = mem
	}

	cache := services.NewTenantCache(cfg.Tenancy.CacheSlidingTTL, cfg.Tenancy.CacheAbsoluteTTL)
	resolver := services.NewTenantResolver(tenantRepo, cache, services.TenantResolverConfig{
		HeaderName:         cfg.Tenancy.HeaderName,
		QueryParamEnabled:  cfg.Tenancy.QueryParamEnabled,
		ReservedSubdomains: cfg.Tenancy.ReservedSubdomains,
		TrustProxy:         cfg.Tenancy.TrustProxy,
	})
	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)

	app.RegisterServices(
		cache,
		resolver,
		tokens,
		services.NewAuthService(services.AuthServiceOptions{
			Resolver:        resolver,
			Tenants:         tenantRepo,
			Scope:           scope,
			Users:           userRepo,
			RefreshTokens:   refreshRepo,
			Tokens:          tokens,
			Publisher:       app.EventPublisher(),
			RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
			BcryptCost:      cfg.Auth.BcryptCost,
		}),
		services.NewUserService(scope, userRepo, app.EventPublisher(), cfg.Auth.BcryptCost),
		services.NewTenantLifecycleService(tenantRepo, cache, app.EventPublisher()),
	)

	handlers.RegisterAuthEventHandlers(app)

	app.RegisterControllers(
		controllers.NewHealthController(health),
		controllers.NewAuthController(app, controllers.AuthControllerOptions{
			LoginPerMinute: loginLimit(cfg),
		}),
		controllers.NewMeController(app),
	)
	return nil
}

func loginLimit(cfg *configuration.Configuration) int {
	if !cfg.RateLimit.Enabled {
		return 0
	}
	return cfg.RateLimit.LoginPerMin
}

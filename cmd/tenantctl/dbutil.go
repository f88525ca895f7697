package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

type toolkit struct {
	conf      *configuration.Configuration
	pool      *pgxpool.Pool
	lifecycle *services.TenantLifecycleService
	users     *services.UserService
}

// newToolkit wires the services against Postgres. There is no tenant cache
// here: running servers pick up changes once their cache entries expire.
func newToolkit(ctx context.Context) (*toolkit, error) {
	conf := configuration.Use()
	pool, err := connectDB(ctx, conf)
	if err != nil {
		return nil, err
	}
	bus := eventbus.NewEventPublisher(conf.Logger())
	bus.Subscribe(func(e *services.TenantStatusChangedEvent) {
		conf.Logger().WithFields(logrus.Fields{
			"tenant_id": e.TenantID,
			"from":      e.From,
			"to":        e.To,
		}).Info("tenant status changed")
	})
	tenants := persistence.NewTenantRepository(pool)
	return &toolkit{
		conf:      conf,
		pool:      pool,
		lifecycle: services.NewTenantLifecycleService(tenants, nil, bus),
		users:     services.NewUserService(persistence.NewPgStoreScope(pool), persistence.NewUserRepository(), bus, conf.Auth.BcryptCost),
	}, nil
}

func (t *toolkit) Close() {
	t.pool.Close()
	t.conf.Unload()
}

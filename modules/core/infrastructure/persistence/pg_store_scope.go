package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/configuration"
)

var ErrInvalidStoreName = errors.New("invalid store name")

// PgStoreScope runs work inside one tenant schema. Each Run is a fresh
// transaction whose search_path is set local to it, so the pooled
// connection returns to the pool unscoped.
type PgStoreScope struct {
	pool *pgxpool.Pool
}

func NewPgStoreScope(pool *pgxpool.Pool) *PgStoreScope {
	return &PgStoreScope{pool: pool}
}

func (s *PgStoreScope) Run(ctx context.Context, storeName string, fn func(ctx context.Context) error) error {
	if !configuration.ValidStoreName(storeName) {
		return errors.Wrapf(ErrInvalidStoreName, "%q", storeName)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin store transaction")
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	schema := pgx.Identifier{storeName}.Sanitize()
	if _, err := tx.Exec(ctx, "SELECT set_config('search_path', $1, true)", schema); err != nil {
		return errors.Wrap(err, "failed to scope search_path")
	}

	scoped := composables.WithStoreName(composables.WithTx(ctx, tx), storeName)
	if err := fn(scoped); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit store transaction")
	}
	return nil
}

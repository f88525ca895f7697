package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/tenantgate/pkg/constants"
)

var (
	ErrNoTx    = errors.New("no transaction found in context")
	ErrNoStore = errors.New("no tenant store found in context")
)

// Tx is the query surface shared by pgx.Tx and *pgxpool.Pool.
type Tx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the store-scoped transaction. It never falls back to the
// pool: tenant data must only be read through a scoped transaction.
func UseTx(ctx context.Context) (Tx, error) {
	tx, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	if !ok || tx == nil {
		return nil, ErrNoTx
	}
	return tx, nil
}

// WithStoreName records which isolated store the current execution is scoped to.
func WithStoreName(ctx context.Context, storeName string) context.Context {
	return context.WithValue(ctx, constants.StoreNameKey, storeName)
}

func UseStoreName(ctx context.Context) (string, error) {
	name, ok := ctx.Value(constants.StoreNameKey).(string)
	if !ok || name == "" {
		return "", ErrNoStore
	}
	return name, nil
}

// Package migrations applies the shared registry schema and the per-tenant
// store schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed shared/*.sql tenant/*.sql
var files embed.FS

func Shared() fs.FS {
	sub, _ := fs.Sub(files, "shared")
	return sub
}

func Tenant() fs.FS {
	sub, _ := fs.Sub(files, "tenant")
	return sub
}

// ApplyShared migrates the registry tables in the public schema.
func ApplyShared(ctx context.Context, dsn string) ([]*goose.MigrationResult, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	cfg.RuntimeParams["search_path"] = "public"
	return apply(ctx, cfg, Shared())
}

// ProvisionStore creates the tenant schema if needed and migrates it. The
// goose version table lives inside the schema, so every store is versioned
// independently.
func ProvisionStore(ctx context.Context, dsn, storeName string) ([]*goose.MigrationResult, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	schema := pgx.Identifier{storeName}.Sanitize()

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema)
	closeErr := conn.Close(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "create schema %s", schema)
	}
	if closeErr != nil {
		return nil, errors.Wrap(closeErr, "close connection")
	}

	cfg.RuntimeParams["search_path"] = schema
	return apply(ctx, cfg, Tenant())
}

func apply(ctx context.Context, cfg *pgx.ConnConfig, fsys fs.FS) ([]*goose.MigrationResult, error) {
	db := stdlib.OpenDB(*cfg)
	defer func(db *sql.DB) {
		_ = db.Close()
	}(db)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, errors.Wrap(err, "create goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return results, errors.Wrap(err, "apply migrations")
	}
	return results, nil
}

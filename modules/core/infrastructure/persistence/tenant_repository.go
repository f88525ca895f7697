package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence/models"
	"github.com/iota-uz/tenantgate/pkg/composables"
)

const (
	pgUniqueViolation = "23505"

	tenantsStoreNameKey   = "tenants_store_name_key"
	tenantRoutingKeysPkey = "tenant_routing_keys_pkey"
)

// The registry lives in the shared schema, so every statement is schema
// qualified and independent of the search_path a store scope may have set.
const (
	tenantFindQuery = `
		SELECT
			t.id::text,
			t.name,
			t.store_name,
			t.status,
			t.plan_id,
			t.subscription_end_date,
			t.suspend_reason,
			COALESCE(array_agg(k.key ORDER BY k.key) FILTER (WHERE k.key IS NOT NULL), '{}') AS routing_keys,
			t.created_at,
			t.updated_at
		FROM public.tenants t
		LEFT JOIN public.tenant_routing_keys k ON k.tenant_id = t.id`

	tenantGroupBy = ` GROUP BY t.id`

	tenantInsertQuery = `
		INSERT INTO public.tenants (id, name, store_name, status, plan_id, subscription_end_date, suspend_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	tenantUpdateQuery = `
		UPDATE public.tenants
		SET name = $1, status = $2, plan_id = $3, subscription_end_date = $4, suspend_reason = $5, updated_at = $6
		WHERE id = $7 AND status = $8`

	tenantStatusQuery = `SELECT status FROM public.tenants WHERE id = $1`

	routingKeysDeleteQuery = `DELETE FROM public.tenant_routing_keys WHERE tenant_id = $1`
	routingKeyInsertQuery  = `INSERT INTO public.tenant_routing_keys (key, tenant_id) VALUES ($1, $2)`
)

type PgTenantRepository struct {
	pool *pgxpool.Pool
}

func NewTenantRepository(pool *pgxpool.Pool) tenant.Repository {
	return &PgTenantRepository{pool: pool}
}

// conn prefers a transaction already carried by ctx, so tenantctl can group
// registry writes with schema provisioning.
func (r *PgTenantRepository) conn(ctx context.Context) composables.Tx {
	if tx, err := composables.UseTx(ctx); err == nil {
		return tx
	}
	return r.pool
}

func (r *PgTenantRepository) FindByRoutingKey(ctx context.Context, key string) (*tenant.Tenant, error) {
	key = tenant.NormalizeKey(key)
	if key == "" {
		return nil, tenant.ErrNotFound
	}
	query := tenantFindQuery + `
		WHERE t.id::text = $1
		   OR t.id IN (SELECT tenant_id FROM public.tenant_routing_keys WHERE key = $1)` + tenantGroupBy
	tenants, err := r.queryTenants(ctx, query, key)
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, tenant.ErrNotFound
	}
	return tenants[0], nil
}

func (r *PgTenantRepository) FindActive(ctx context.Context) ([]*tenant.Tenant, error) {
	query := tenantFindQuery + ` WHERE t.status = $1` + tenantGroupBy + ` ORDER BY t.created_at, t.id`
	return r.queryTenants(ctx, query, tenant.StatusActive.String())
}

func (r *PgTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	tenants, err := r.queryTenants(ctx, tenantFindQuery+` WHERE t.id = $1`+tenantGroupBy, id.String())
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, tenant.ErrNotFound
	}
	return tenants[0], nil
}

func (r *PgTenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	dbTenant := ToDBTenant(t)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			tenantInsertQuery,
			dbTenant.ID,
			dbTenant.Name,
			dbTenant.StoreName,
			dbTenant.Status,
			dbTenant.PlanID,
			dbTenant.SubscriptionEndDate,
			dbTenant.SuspendReason,
			dbTenant.CreatedAt,
			dbTenant.UpdatedAt,
		); err != nil {
			return err
		}
		return insertRoutingKeys(ctx, tx, dbTenant.ID, dbTenant.RoutingKeys)
	})
	if err != nil {
		return nil, mapTenantWriteError(err)
	}
	return r.GetByID(ctx, t.ID())
}

func (r *PgTenantRepository) Update(ctx context.Context, t *tenant.Tenant, expected tenant.Status) (*tenant.Tenant, error) {
	dbTenant := ToDBTenant(t)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			tenantUpdateQuery,
			dbTenant.Name,
			dbTenant.Status,
			dbTenant.PlanID,
			dbTenant.SubscriptionEndDate,
			dbTenant.SuspendReason,
			dbTenant.UpdatedAt,
			dbTenant.ID,
			string(expected),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var current string
			if err := tx.QueryRow(ctx, tenantStatusQuery, dbTenant.ID).Scan(&current); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return tenant.ErrNotFound
				}
				return err
			}
			return tenant.ErrStaleStatus
		}
		if _, err := tx.Exec(ctx, routingKeysDeleteQuery, dbTenant.ID); err != nil {
			return err
		}
		return insertRoutingKeys(ctx, tx, dbTenant.ID, dbTenant.RoutingKeys)
	})
	if err != nil {
		return nil, mapTenantWriteError(err)
	}
	return r.GetByID(ctx, t.ID())
}

func (r *PgTenantRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if tx, err := composables.UseTx(ctx); err == nil {
		if pgTx, ok := tx.(pgx.Tx); ok {
			return fn(pgTx)
		}
	}
	return pgx.BeginFunc(ctx, r.pool, fn)
}

func (r *PgTenantRepository) queryTenants(ctx context.Context, query string, args ...interface{}) ([]*tenant.Tenant, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.StoreName,
			&t.Status,
			&t.PlanID,
			&t.SubscriptionEndDate,
			&t.SuspendReason,
			&t.RoutingKeys,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant row")
		}
		domainTenant, err := ToDomainTenant(&t)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, domainTenant)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return tenants, nil
}

func insertRoutingKeys(ctx context.Context, tx pgx.Tx, tenantID string, keys []string) error {
	for _, key := range keys {
		if _, err := tx.Exec(ctx, routingKeyInsertQuery, key, tenantID); err != nil {
			return err
		}
	}
	return nil
}

func mapTenantWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case tenantsStoreNameKey:
			return tenant.ErrStoreNameTaken
		case tenantRoutingKeysPkey:
			return tenant.ErrRoutingKeyTaken
		}
	}
	if errors.Is(err, tenant.ErrNotFound) {
		return err
	}
	return errors.Wrap(err, "failed to write tenant")
}

package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence/models"
	"github.com/iota-uz/tenantgate/pkg/composables"
)

// Statements are unqualified: they resolve against the search_path of the
// store scope the context carries.
const (
	userFindQuery = `
		SELECT
			u.id::text,
			u.email,
			u.password_hash,
			u.is_active,
			u.first_name,
			u.last_name,
			u.created_at,
			u.updated_at
		FROM users u`

	userRolesQuery = `
		SELECT
			r.id::text,
			r.name,
			COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code) FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ur.user_id = $1
		GROUP BY r.id, r.name
		ORDER BY r.name`

	userInsertQuery = `
		INSERT INTO users (id, email, password_hash, is_active, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	roleUpsertQuery = `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id::text`

	permissionUpsertQuery     = `INSERT INTO permissions (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`
	rolePermissionInsertQuery = `INSERT INTO role_permissions (role_id, permission_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	userRoleInsertQuery       = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

type PgUserRepository struct{}

func NewUserRepository() user.Repository {
	return &PgUserRepository{}
}

func (g *PgUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	users, err := g.queryUsers(ctx, userFindQuery+" WHERE lower(u.email) = $1", user.NormalizeEmail(email))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user by email")
	}
	if len(users) == 0 {
		return nil, user.ErrNotFound
	}
	return users[0], nil
}

func (g *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	users, err := g.queryUsers(ctx, userFindQuery+" WHERE u.id = $1", id.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user by id")
	}
	if len(users) == 0 {
		return nil, user.ErrNotFound
	}
	return users[0], nil
}

// Create inserts the user and upserts its roles and their permissions.
func (g *PgUserRepository) Create(ctx context.Context, data *user.User) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	dbUser := ToDBUser(data)
	if _, err := tx.Exec(
		ctx,
		userInsertQuery,
		dbUser.ID,
		dbUser.Email,
		dbUser.PasswordHash,
		dbUser.IsActive,
		dbUser.FirstName,
		dbUser.LastName,
		dbUser.CreatedAt,
		dbUser.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, user.ErrEmailTaken
		}
		return nil, errors.Wrap(err, "failed to insert user")
	}

	for _, r := range data.Roles() {
		var roleID string
		if err := tx.QueryRow(ctx, roleUpsertQuery, r.ID().String(), r.Name()).Scan(&roleID); err != nil {
			return nil, errors.Wrap(err, "failed to upsert role")
		}
		for _, code := range r.Permissions() {
			if _, err := tx.Exec(ctx, permissionUpsertQuery, code); err != nil {
				return nil, errors.Wrap(err, "failed to upsert permission")
			}
			if _, err := tx.Exec(ctx, rolePermissionInsertQuery, roleID, code); err != nil {
				return nil, errors.Wrap(err, "failed to link role permission")
			}
		}
		if _, err := tx.Exec(ctx, userRoleInsertQuery, dbUser.ID, roleID); err != nil {
			return nil, errors.Wrap(err, "failed to link user role")
		}
	}
	return g.GetByID(ctx, data.ID())
}

func (g *PgUserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	var dbUsers []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.PasswordHash,
			&u.IsActive,
			&u.FirstName,
			&u.LastName,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan user")
		}
		dbUsers = append(dbUsers, &u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	users := make([]*user.User, 0, len(dbUsers))
	for _, dbUser := range dbUsers {
		roles, err := g.userRoles(ctx, tx, dbUser.ID)
		if err != nil {
			return nil, err
		}
		domainUser, err := ToDomainUser(dbUser, roles)
		if err != nil {
			return nil, err
		}
		users = append(users, domainUser)
	}
	return users, nil
}

func (g *PgUserRepository) userRoles(ctx context.Context, tx composables.Tx, userID string) ([]*role.Role, error) {
	rows, err := tx.Query(ctx, userRolesQuery, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user roles")
	}
	defer rows.Close()

	var roles []*role.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Permissions); err != nil {
			return nil, errors.Wrap(err, "failed to scan role")
		}
		domainRole, err := ToDomainRole(&r)
		if err != nil {
			return nil, err
		}
		roles = append(roles, domainRole)
	}
	return roles, rows.Err()
}

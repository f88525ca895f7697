package persistence

import (
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/user"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence/models"
)

func ToDomainTenant(t *models.Tenant) (*tenant.Tenant, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return nil, errors.Wrap(err, "parse tenant id")
	}
	status, err := tenant.ParseStatus(t.Status)
	if err != nil {
		return nil, err
	}
	opts := []tenant.Option{
		tenant.WithID(id),
		tenant.WithStatus(status),
		tenant.WithRoutingKeys(t.RoutingKeys...),
		tenant.WithPlanID(t.PlanID),
		tenant.WithSuspendReason(t.SuspendReason),
		tenant.WithCreatedAt(t.CreatedAt),
		tenant.WithUpdatedAt(t.UpdatedAt),
	}
	if t.SubscriptionEndDate.Valid {
		end := t.SubscriptionEndDate.Time
		opts = append(opts, tenant.WithSubscriptionEndDate(&end))
	}
	return tenant.New(t.Name, t.StoreName, opts...), nil
}

func ToDBTenant(t *tenant.Tenant) *models.Tenant {
	return &models.Tenant{
		ID:                  t.ID().String(),
		Name:                t.Name(),
		StoreName:           t.StoreName(),
		Status:              t.Status().String(),
		PlanID:              t.PlanID(),
		SubscriptionEndDate: timePtrToNull(t.SubscriptionEndDate()),
		SuspendReason:       t.SuspendReason(),
		RoutingKeys:         t.RoutingKeys(),
		CreatedAt:           t.CreatedAt(),
		UpdatedAt:           t.UpdatedAt(),
	}
}

func ToDomainRole(r *models.Role) (*role.Role, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, errors.Wrap(err, "parse role id")
	}
	return role.New(r.Name, role.WithID(id), role.WithPermissions(r.Permissions...)), nil
}

func ToDomainUser(u *models.User, roles []*role.Role) (*user.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "parse user id")
	}
	return user.New(
		u.Email,
		user.WithID(id),
		user.WithPasswordHash(u.PasswordHash.String),
		user.WithActive(u.IsActive),
		user.WithName(u.FirstName, u.LastName),
		user.WithRoles(roles...),
		user.WithCreatedAt(u.CreatedAt),
		user.WithUpdatedAt(u.UpdatedAt),
	), nil
}

func ToDBUser(u *user.User) *models.User {
	return &models.User{
		ID:           u.ID().String(),
		Email:        u.Email(),
		PasswordHash: stringToNull(u.PasswordHash()),
		IsActive:     u.IsActive(),
		FirstName:    u.FirstName(),
		LastName:     u.LastName(),
		CreatedAt:    u.CreatedAt(),
		UpdatedAt:    u.UpdatedAt(),
	}
}

func ToDomainRefreshToken(t *models.RefreshToken) (*refreshtoken.RefreshToken, error) {
	userID, err := uuid.Parse(t.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "parse refresh token user id")
	}
	out := &refreshtoken.RefreshToken{
		Token:           t.Token,
		UserID:          userID,
		ExpiresAt:       t.ExpiresAt,
		CreatedAt:       t.CreatedAt,
		CreatedByIP:     t.CreatedByIP.String,
		IsRevoked:       t.IsRevoked,
		RevokedByIP:     t.RevokedByIP.String,
		ReplacedByToken: t.ReplacedByToken.String,
	}
	if t.RevokedAt.Valid {
		at := t.RevokedAt.Time
		out.RevokedAt = &at
	}
	return out, nil
}

func ToDBRefreshToken(t *refreshtoken.RefreshToken) *models.RefreshToken {
	return &models.RefreshToken{
		Token:           t.Token,
		UserID:          t.UserID.String(),
		ExpiresAt:       t.ExpiresAt,
		CreatedAt:       t.CreatedAt,
		CreatedByIP:     stringToNull(t.CreatedByIP),
		IsRevoked:       t.IsRevoked,
		RevokedAt:       timePtrToNull(t.RevokedAt),
		RevokedByIP:     stringToNull(t.RevokedByIP),
		ReplacedByToken: stringToNull(t.ReplacedByToken),
	}
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

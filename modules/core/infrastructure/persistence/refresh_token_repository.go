package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/refreshtoken"
	"github.com/iota-uz/tenantgate/modules/core/infrastructure/persistence/models"
	"github.com/iota-uz/tenantgate/pkg/composables"
)

const (
	refreshTokenFindQuery = `
		SELECT
			token,
			user_id::text,
			expires_at,
			created_at,
			created_by_ip,
			is_revoked,
			revoked_at,
			revoked_by_ip,
			replaced_by_token
		FROM refresh_tokens`

	refreshTokenInsertQuery = `
		INSERT INTO refresh_tokens (token, user_id, expires_at, created_at, created_by_ip, is_revoked)
		VALUES ($1, $2, $3, $4, $5, FALSE)`

	// Conditional on the row still being unrevoked so two concurrent
	// rotations of the same token cannot both succeed.
	refreshTokenRevokeQuery = `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2, revoked_by_ip = $3, replaced_by_token = $4
		WHERE token = $1 AND is_revoked = FALSE`

	refreshTokenRevokeAllQuery = `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $2, revoked_by_ip = $3
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2`
)

type PgRefreshTokenRepository struct{}

func NewRefreshTokenRepository() refreshtoken.Repository {
	return &PgRefreshTokenRepository{}
}

func (r *PgRefreshTokenRepository) Create(ctx context.Context, t *refreshtoken.RefreshToken) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	return insertRefreshToken(ctx, tx, t)
}

func (r *PgRefreshTokenRepository) GetByToken(ctx context.Context, token string) (*refreshtoken.RefreshToken, error) {
	tokens, err := r.queryTokens(ctx, refreshTokenFindQuery+" WHERE token = $1", token)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, refreshtoken.ErrNotFound
	}
	return tokens[0], nil
}

func (r *PgRefreshTokenRepository) Rotate(ctx context.Context, old *refreshtoken.RefreshToken, ip string, replacement *refreshtoken.RefreshToken) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, refreshTokenRevokeQuery, old.Token, now, ip, replacement.Token)
	if err != nil {
		return errors.Wrap(err, "failed to revoke refresh token")
	}
	if tag.RowsAffected() == 0 {
		return refreshtoken.ErrAlreadyRevoked
	}
	if err := insertRefreshToken(ctx, tx, replacement); err != nil {
		return err
	}
	old.Revoke(now, ip, replacement.Token)
	return nil
}

func (r *PgRefreshTokenRepository) Revoke(ctx context.Context, token, ip string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, refreshTokenRevokeQuery, token, time.Now().UTC(), ip, nil)
	if err != nil {
		return errors.Wrap(err, "failed to revoke refresh token")
	}
	if tag.RowsAffected() == 0 {
		return refreshtoken.ErrAlreadyRevoked
	}
	return nil
}

func (r *PgRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, ip string) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, refreshTokenRevokeAllQuery, userID.String(), time.Now().UTC(), ip)
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke user refresh tokens")
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRefreshTokenRepository) queryTokens(ctx context.Context, query string, args ...interface{}) ([]*refreshtoken.RefreshToken, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tokens []*refreshtoken.RefreshToken
	for rows.Next() {
		var t models.RefreshToken
		if err := rows.Scan(
			&t.Token,
			&t.UserID,
			&t.ExpiresAt,
			&t.CreatedAt,
			&t.CreatedByIP,
			&t.IsRevoked,
			&t.RevokedAt,
			&t.RevokedByIP,
			&t.ReplacedByToken,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan refresh token")
		}
		domainToken, err := ToDomainRefreshToken(&t)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, domainToken)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return tokens, nil
}

func insertRefreshToken(ctx context.Context, tx composables.Tx, t *refreshtoken.RefreshToken) error {
	dbToken := ToDBRefreshToken(t)
	if _, err := tx.Exec(
		ctx,
		refreshTokenInsertQuery,
		dbToken.Token,
		dbToken.UserID,
		dbToken.ExpiresAt,
		dbToken.CreatedAt,
		dbToken.CreatedByIP,
	); err != nil {
		return errors.Wrap(err, "failed to insert refresh token")
	}
	return nil
}

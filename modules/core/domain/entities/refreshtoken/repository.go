package refreshtoken

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("refresh token not found")
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
)

// Repository operates on the refresh tokens of the store the context is
// scoped to. Rows are never deleted.
type Repository interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	// Rotate revokes old and inserts replacement in one step. It returns
	// ErrAlreadyRevoked when old was revoked concurrently.
	Rotate(ctx context.Context, old *RefreshToken, ip string, replacement *RefreshToken) error
	Revoke(ctx context.Context, token, ip string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, ip string) (int, error)
}

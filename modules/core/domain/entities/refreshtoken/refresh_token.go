package refreshtoken

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// TokenBytes is the amount of entropy in a refresh token before encoding.
const TokenBytes = 64

type RefreshToken struct {
	Token           string
	UserID          uuid.UUID
	ExpiresAt       time.Time
	CreatedAt       time.Time
	CreatedByIP     string
	IsRevoked       bool
	RevokedAt       *time.Time
	RevokedByIP     string
	ReplacedByToken string
}

// New creates an unrevoked token for userID that expires after ttl.
func New(userID uuid.UUID, ttl time.Duration, ip string) (*RefreshToken, error) {
	token, err := Generate()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &RefreshToken{
		Token:       token,
		UserID:      userID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		CreatedByIP: ip,
	}, nil
}

// Generate returns TokenBytes of crypto/rand output, base64url encoded without padding.
func Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(now)
}

// Revoke marks the token revoked. replacedBy is empty for plain revocation.
func (t *RefreshToken) Revoke(now time.Time, ip, replacedBy string) {
	t.IsRevoked = true
	t.RevokedAt = &now
	t.RevokedByIP = ip
	t.ReplacedByToken = replacedBy
}

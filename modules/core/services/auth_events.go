package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/pkg/composables"
)

// Sender carries request metadata common to every auth event.
type Sender struct {
	IP        string
	UserAgent string
	RequestID string
}

func senderFromContext(ctx context.Context, ip string) Sender {
	s := Sender{IP: ip}
	if params, ok := composables.UseParams(ctx); ok {
		if s.IP == "" {
			s.IP = params.IP
		}
		s.UserAgent = params.UserAgent
		s.RequestID = params.RequestID
	}
	return s
}

type LoginSucceededEvent struct {
	Sender     Sender
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Email      string
	OccurredAt time.Time
}

type LoginFailedEvent struct {
	Sender     Sender
	TenantID   uuid.UUID
	RoutingKey string
	Email      string
	Reason     string
	OccurredAt time.Time
}

type TokenRefreshedEvent struct {
	Sender     Sender
	TenantID   uuid.UUID
	UserID     uuid.UUID
	OccurredAt time.Time
}

type TokenRevokedEvent struct {
	Sender     Sender
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Count      int
	All        bool
	OccurredAt time.Time
}

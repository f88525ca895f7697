package handlers

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
)

// AuthEventsHandler writes one structured audit line per auth event.
type AuthEventsHandler struct {
	logger logrus.FieldLogger
}

func NewAuthEventsHandler(logger logrus.FieldLogger) *AuthEventsHandler {
	return &AuthEventsHandler{logger: logger}
}

func RegisterAuthEventHandlers(app application.Application) *AuthEventsHandler {
	handler := NewAuthEventsHandler(app.Logger())
	handler.Subscribe(app)
	return handler
}

func (h *AuthEventsHandler) Subscribe(app application.Application) {
	bus := app.EventPublisher()
	bus.Subscribe(h.onLoginSucceeded)
	bus.Subscribe(h.onLoginFailed)
	bus.Subscribe(h.onTokenRefreshed)
	bus.Subscribe(h.onTokenRevoked)
	bus.Subscribe(h.onTenantStatusChanged)
}

func (h *AuthEventsHandler) entry(event string, tenantID uuid.UUID, sender services.Sender) *logrus.Entry {
	fields := logrus.Fields{
		"audit":      true,
		"event":      event,
		"ip":         sender.IP,
		"request-id": sender.RequestID,
	}
	if tenantID != uuid.Nil {
		fields["tenant_id"] = tenantID.String()
	}
	return h.logger.WithFields(fields)
}

func (h *AuthEventsHandler) onLoginSucceeded(e *services.LoginSucceededEvent) {
	h.entry("login_succeeded", e.TenantID, e.Sender).
		WithField("user_id", e.UserID.String()).
		Info("user logged in")
}

func (h *AuthEventsHandler) onLoginFailed(e *services.LoginFailedEvent) {
	h.entry("login_failed", e.TenantID, e.Sender).
		WithField("reason", e.Reason).
		WithField("routing_key", e.RoutingKey).
		Warn("login failed")
}

func (h *AuthEventsHandler) onTokenRefreshed(e *services.TokenRefreshedEvent) {
	h.entry("token_refreshed", e.TenantID, e.Sender).
		WithField("user_id", e.UserID.String()).
		Info("refresh token rotated")
}

func (h *AuthEventsHandler) onTokenRevoked(e *services.TokenRevokedEvent) {
	h.entry("token_revoked", e.TenantID, e.Sender).
		WithField("user_id", e.UserID.String()).
		WithField("count", e.Count).
		WithField("all", e.All).
		Info("refresh tokens revoked")
}

func (h *AuthEventsHandler) onTenantStatusChanged(e *services.TenantStatusChangedEvent) {
	h.entry("tenant_status_changed", e.TenantID, services.Sender{}).
		WithField("from", e.From.String()).
		WithField("to", e.To.String()).
		WithField("reason", e.Reason).
		Info("tenant status changed")
}

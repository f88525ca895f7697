package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/eventbus"
)

func TestAuthEventsHandler_WritesAuditLines(t *testing.T) {
	logger, hook := test.NewNullLogger()
	app := application.New(&application.ApplicationOptions{
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	RegisterAuthEventHandlers(app)

	tenantID := uuid.New()
	app.EventPublisher().Publish(&services.LoginFailedEvent{
		Sender:     services.Sender{IP: "10.0.0.1", RequestID: "req-1"},
		TenantID:   tenantID,
		RoutingKey: "acme",
		Email:      "alice@acme.com",
		Reason:     "INVALID_CREDENTIALS",
		OccurredAt: time.Now(),
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "login_failed", entry.Data["event"])
	require.Equal(t, tenantID.String(), entry.Data["tenant_id"])
	require.Equal(t, "INVALID_CREDENTIALS", entry.Data["reason"])
	require.NotContains(t, entry.Data, "email")

	app.EventPublisher().Publish(&services.TenantStatusChangedEvent{
		TenantID: tenantID,
		From:     tenant.StatusActive,
		To:       tenant.StatusSuspended,
		Reason:   "unpaid",
	})
	entry = hook.LastEntry()
	require.Equal(t, "tenant_status_changed", entry.Data["event"])
	require.Equal(t, "suspended", entry.Data["to"])

	app.EventPublisher().Publish(&services.LoginSucceededEvent{UserID: uuid.New()})
	entry = hook.LastEntry()
	require.Equal(t, "login_succeeded", entry.Data["event"])
	require.NotContains(t, entry.Data, "tenant_id")
	require.Len(t, hook.AllEntries(), 3)
}

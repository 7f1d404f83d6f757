package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime/realtimetest"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

func TestSubscribeSideEffectsOnOutbox(t *testing.T) {
	store := repotest.NewStore()
	dept := "dept-1"
	store.AddUser(domain.User{ID: "u-admin", Username: "admin", Role: domain.RoleAdmin, IsActive: true})
	store.AddUser(domain.User{ID: "u-agent", Username: "agent", Role: domain.RoleAgent, DepartmentID: &dept, IsActive: true})
	push := realtimetest.NewRecorder()

	outbox := events.NewOutbox(2, 8, nil, nil)
	SubscribeSideEffects(outbox,
		service.NewNotificationRouter(service.NotificationRouterDependencies{
			NotificationRepo: store.Notifications(),
			UserRepo:         store.Users(),
			Transport:        push,
		}),
		service.NewActivityAuditLog(service.ActivityLogDependencies{
			ActivityRepo: store.Activity(),
			TicketRepo:   store.Tickets(),
		}))

	ticket := domain.Ticket{ID: "t-1", Title: "Badge reader", DepartmentID: dept, OwnerUserID: "u-client", Status: domain.TicketStatusOpen}
	client := domain.Principal{ID: "u-client", Username: "client", Role: domain.RoleClient}
	require.NoError(t, outbox.Publish(context.Background(), events.TicketCreated{
		Meta:   events.NewMeta(ticket.ID, client, time.Now()),
		Ticket: ticket,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, outbox.Close(ctx))

	assert.Len(t, store.AllNotifications(), 2)
	assert.Len(t, store.AllActivity(), 1)
	assert.NotEmpty(t, push.Pushes())
}

func TestSubscribeSideEffectsToleratesNil(t *testing.T) {
	assert.NotPanics(t, func() { SubscribeSideEffects(nil, nil, nil) })
	d := events.NewSyncDispatcher(nil, nil)
	assert.NotPanics(t, func() { SubscribeSideEffects(d, nil, nil) })
}

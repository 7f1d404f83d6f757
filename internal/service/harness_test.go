package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime/realtimetest"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store     *repotest.Store
	clock     *fakeClock
	push      *realtimetest.Recorder
	machine   *StateMachine
	tickets   *TicketService
	router    *NotificationRouter
	audit     *ActivityAuditLog
	inbox     *NotificationService
	dept      domain.Department
	otherDept domain.Department

	admin   domain.Principal
	agent   domain.Principal
	agent2  domain.Principal
	outside domain.Principal
	client  domain.Principal
	client2 domain.Principal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: repotest.NewStore(),
		clock: newFakeClock(),
		push:  realtimetest.NewRecorder(),
	}
	h.dept = h.store.AddDepartment(domain.Department{ID: "dept-1", Name: "IT", IsActive: true})
	h.otherDept = h.store.AddDepartment(domain.Department{ID: "dept-2", Name: "Facilities", IsActive: true})

	h.admin = h.addUser("u-admin", domain.RoleAdmin, "")
	h.agent = h.addUser("u-agent-1", domain.RoleAgent, h.dept.ID)
	h.agent2 = h.addUser("u-agent-2", domain.RoleAgent, h.dept.ID)
	h.outside = h.addUser("u-agent-3", domain.RoleAgent, h.otherDept.ID)
	h.client = h.addUser("u-client-1", domain.RoleClient, "")
	h.client2 = h.addUser("u-client-2", domain.RoleClient, "")

	dispatcher := events.NewSyncDispatcher(nil, nil)
	h.router = NewNotificationRouter(NotificationRouterDependencies{
		NotificationRepo: h.store.Notifications(),
		UserRepo:         h.store.Users(),
		Transport:        h.push,
		Clock:            h.clock.Now,
	})
	h.audit = NewActivityAuditLog(ActivityLogDependencies{
		ActivityRepo: h.store.Activity(),
		TicketRepo:   h.store.Tickets(),
		Clock:        h.clock.Now,
	})
	dispatcher.Subscribe("notifications", h.router)
	dispatcher.Subscribe("activity", h.audit)

	h.machine = NewStateMachine(StateMachineDependencies{
		TicketRepo:  h.store.Tickets(),
		CommentRepo: h.store.Comments(),
		UserRepo:    h.store.Users(),
		Dispatcher:  dispatcher,
		Clock:       h.clock.Now,
	})
	h.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     h.store.Tickets(),
		CommentRepo:    h.store.Comments(),
		FeedbackRepo:   h.store.Feedback(),
		DepartmentRepo: h.store.Departments(),
		UserRepo:       h.store.Users(),
		Dispatcher:     dispatcher,
		Clock:          h.clock.Now,
	})
	h.inbox = NewNotificationService(h.store.Notifications())
	return h
}

func (h *harness) addUser(id string, role domain.Role, departmentID string) domain.Principal {
	u := domain.User{ID: id, Username: id, Email: id + "@example.com", Role: role, IsActive: true}
	if departmentID != "" {
		dept := departmentID
		u.DepartmentID = &dept
	}
	h.store.AddUser(u)
	return domain.Principal{ID: id, Username: id, Role: role, DepartmentID: departmentID}
}

// openTicket files a ticket as h.client in h.dept.
func (h *harness) openTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.CreateTicket(context.Background(), h.client, TicketCreateInput{
		Title:        "VPN drops",
		Description:  "Connection resets every ten minutes",
		Priority:     domain.TicketPriorityHigh,
		DepartmentID: h.dept.ID,
	})
	require.NoError(t, err)
	return ticket
}

// resolvedTicket walks a fresh ticket to resolved via h.agent.
func (h *harness) resolvedTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := h.openTicket(t)
	_, err := h.machine.SelfAssign(ctx, h.agent, ticket.ID)
	require.NoError(t, err)
	resolved, err := h.machine.Resolve(ctx, h.agent, ticket.ID)
	require.NoError(t, err)
	return resolved
}

func (h *harness) notificationsFor(userID string, kind domain.NotificationType) []domain.Notification {
	var out []domain.Notification
	for _, n := range h.store.AllNotifications() {
		if n.RecipientUserID == userID && (kind == "" || n.Type == kind) {
			out = append(out, n)
		}
	}
	return out
}

func (h *harness) recipientsOf(kind domain.NotificationType) []string {
	var out []string
	for _, n := range h.store.AllNotifications() {
		if n.Type == kind {
			out = append(out, n.RecipientUserID)
		}
	}
	return out
}

func (h *harness) activity(action domain.ActivityAction) []domain.ActivityLogEntry {
	var out []domain.ActivityLogEntry
	for _, e := range h.store.AllActivity() {
		if e.ActionType == action {
			out = append(out, e)
		}
	}
	return out
}

func agentID(i int) string {
	return fmt.Sprintf("u-racer-%02d", i)
}

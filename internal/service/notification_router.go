package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const entityTicket = "ticket"

// NotificationRouter turns domain events into per-recipient inbox entries
// and real-time pushes. It runs after the triggering write has committed and
// never fails it: persistence errors are logged per recipient and the rest
// still get their notification.
type NotificationRouter struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	transport     realtime.Transport
	logger        *zap.Logger
	metrics       *observability.Metrics
	clock         func() time.Time
}

// NotificationRouterDependencies bundles collaborators for the router.
type NotificationRouterDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Transport        realtime.Transport
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Clock            func() time.Time
}

// NewNotificationRouter constructs the router.
func NewNotificationRouter(deps NotificationRouterDependencies) *NotificationRouter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := deps.Transport
	if transport == nil {
		transport = realtime.Nop{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &NotificationRouter{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		transport:     transport,
		logger:        logger,
		metrics:       deps.Metrics,
		clock:         clock,
	}
}

// Route delivers one event.
func (r *NotificationRouter) Route(ctx context.Context, event events.Event) error {
	return event.Accept(ctx, r)
}

// recipient pairs a user with the message they should read. When one user
// matches several rules the first message wins.
type recipient struct {
	userID  string
	message string
}

// recipientSet collects recipients, dropping the actor and duplicates.
type recipientSet struct {
	exclude string
	byID    map[string]string
}

func newRecipientSet(actor domain.Principal) *recipientSet {
	return &recipientSet{exclude: actor.ID, byID: make(map[string]string)}
}

func (s *recipientSet) add(userID, message string) {
	if userID == "" || userID == s.exclude {
		return
	}
	if _, seen := s.byID[userID]; seen {
		return
	}
	s.byID[userID] = message
}

func (s *recipientSet) addUsers(users []domain.User, message string) {
	for _, u := range users {
		s.add(u.ID, message)
	}
}

// list returns recipients sorted by user id so delivery order is stable.
func (s *recipientSet) list() []recipient {
	out := make([]recipient, 0, len(s.byID))
	for id, msg := range s.byID {
		out = append(out, recipient{userID: id, message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

func (r *NotificationRouter) VisitTicketCreated(ctx context.Context, e events.TicketCreated) error {
	set := newRecipientSet(e.Actor)
	message := fmt.Sprintf("New ticket: %s", e.Ticket.Title)
	set.addUsers(r.usersByRole(ctx, domain.RoleAdmin), message)
	set.addUsers(r.agentsOf(ctx, e.Ticket.DepartmentID), message)

	r.deliver(ctx, set.list(), domain.NotificationTicketCreated, e.Ticket.ID)
	r.dashboard(fmt.Sprintf("New ticket created: %s", e.Ticket.Title))
	return nil
}

func (r *NotificationRouter) VisitTicketAssigned(ctx context.Context, e events.TicketAssigned) error {
	set := newRecipientSet(e.Actor)
	set.add(e.Ticket.OwnerUserID, fmt.Sprintf("Your ticket %q has been assigned to an agent", e.Ticket.Title))
	if e.Reassignment && e.Ticket.AssignedAgentID != nil {
		set.add(*e.Ticket.AssignedAgentID, fmt.Sprintf("Ticket %q has been assigned to you", e.Ticket.Title))
	}

	r.deliver(ctx, set.list(), domain.NotificationTicketAssigned, e.Ticket.ID)
	if e.Reassignment {
		r.dashboard(fmt.Sprintf("Ticket %q was reassigned", e.Ticket.Title))
	} else {
		r.dashboard(fmt.Sprintf("Ticket %q is now %s", e.Ticket.Title, e.Ticket.Status))
	}
	return nil
}

func (r *NotificationRouter) VisitTicketResolved(ctx context.Context, e events.TicketResolved) error {
	set := newRecipientSet(e.Actor)
	set.add(e.Ticket.OwnerUserID, fmt.Sprintf("Your ticket %q has been resolved", e.Ticket.Title))

	r.deliver(ctx, set.list(), domain.NotificationTicketResolved, e.Ticket.ID)
	r.dashboard(fmt.Sprintf("Ticket %q is now %s", e.Ticket.Title, e.Ticket.Status))
	return nil
}

func (r *NotificationRouter) VisitTicketReopened(ctx context.Context, e events.TicketReopened) error {
	set := newRecipientSet(e.Actor)
	if e.PreviousAgentID != nil {
		set.add(*e.PreviousAgentID, fmt.Sprintf("Ticket %q was reopened", e.Ticket.Title))
	}

	r.deliver(ctx, set.list(), domain.NotificationTicketReopened, e.Ticket.ID)
	r.dashboard(fmt.Sprintf("Ticket %q was reopened", e.Ticket.Title))
	return nil
}

func (r *NotificationRouter) VisitTicketClosed(ctx context.Context, e events.TicketClosed) error {
	set := newRecipientSet(e.Actor)
	message := fmt.Sprintf("Ticket %q has been closed", e.Ticket.Title)
	if e.Reason == domain.ClosureAutoInactivity {
		message = fmt.Sprintf("Ticket %q was closed automatically after inactivity", e.Ticket.Title)
	}
	set.add(e.Ticket.OwnerUserID, message)
	if e.Ticket.AssignedAgentID != nil {
		set.add(*e.Ticket.AssignedAgentID, message)
	}

	r.deliver(ctx, set.list(), domain.NotificationTicketClosed, e.Ticket.ID)
	r.dashboard(fmt.Sprintf("Ticket %q is now %s", e.Ticket.Title, e.Ticket.Status))
	return nil
}

func (r *NotificationRouter) VisitTicketDeleted(_ context.Context, e events.TicketDeleted) error {
	r.dashboard(fmt.Sprintf("Ticket %q was deleted", e.Ticket.Title))
	return nil
}

func (r *NotificationRouter) VisitCommentAdded(ctx context.Context, e events.CommentAdded) error {
	if e.Comment.IsInternal {
		return nil
	}
	set := r.commentRecipients(e.Actor, e.Ticket, e.AuthorRole,
		fmt.Sprintf("New comment on ticket %q", e.Ticket.Title))
	r.deliver(ctx, set.list(), domain.NotificationNewComment, e.Ticket.ID)
	r.transport.Publish(realtime.DepartmentChannel(e.Ticket.DepartmentID), realtime.EventNewComment, map[string]any{
		"ticketId":  e.Ticket.ID,
		"commentBy": string(e.AuthorRole),
	})
	return nil
}

func (r *NotificationRouter) VisitCommentDeleted(ctx context.Context, e events.CommentDeleted) error {
	if e.Comment.IsInternal {
		return nil
	}
	set := r.commentRecipients(e.Actor, e.Ticket, e.AuthorRole,
		fmt.Sprintf("A comment was removed from ticket %q", e.Ticket.Title))
	r.deliver(ctx, set.list(), domain.NotificationCommentDeleted, e.Ticket.ID)
	r.transport.Publish(realtime.DepartmentChannel(e.Ticket.DepartmentID), realtime.EventCommentDeleted, map[string]any{
		"ticketId":  e.Ticket.ID,
		"commentId": e.Comment.ID,
	})
	return nil
}

func (r *NotificationRouter) VisitFeedbackSubmitted(ctx context.Context, e events.FeedbackSubmitted) error {
	set := newRecipientSet(e.Actor)
	message := fmt.Sprintf("Feedback received for ticket %q: %d/5", e.Ticket.Title, e.Feedback.Rating)
	set.addUsers(r.usersByRole(ctx, domain.RoleAdmin), message)
	set.addUsers(r.agentsOf(ctx, e.Ticket.DepartmentID), message)

	r.deliver(ctx, set.list(), domain.NotificationFeedbackSubmitted, e.Ticket.ID)
	return nil
}

var _ events.Visitor = (*NotificationRouter)(nil)

// commentRecipients: a client's comment goes to the assigned agent; a staff
// comment goes to the owner.
func (r *NotificationRouter) commentRecipients(actor domain.Principal, t domain.Ticket, authorRole domain.Role, message string) *recipientSet {
	set := newRecipientSet(actor)
	switch authorRole {
	case domain.RoleClient:
		if t.AssignedAgentID != nil {
			set.add(*t.AssignedAgentID, message)
		}
	case domain.RoleAgent, domain.RoleAdmin:
		set.add(t.OwnerUserID, message)
	}
	return set
}

func (r *NotificationRouter) deliver(ctx context.Context, recipients []recipient, kind domain.NotificationType, ticketID string) {
	for _, rcpt := range recipients {
		n := &domain.Notification{
			RecipientUserID:   rcpt.userID,
			Message:           rcpt.message,
			Type:              kind,
			RelatedEntityType: entityTicket,
			RelatedEntityID:   ticketID,
			CreatedAt:         r.clock().UTC(),
		}
		if err := r.notifications.Create(ctx, n); err != nil {
			r.logger.Error("persist notification",
				zap.String("recipient_id", rcpt.userID),
				zap.String("type", string(kind)),
				zap.String("ticket_id", ticketID),
				zap.Error(err))
			r.metrics.RecordNotification(string(kind), false)
			continue
		}
		r.metrics.RecordNotification(string(kind), true)
		r.transport.Publish(realtime.UserChannel(rcpt.userID), realtime.EventNewNotification, map[string]any{
			"id":         n.ID,
			"message":    n.Message,
			"type":       string(n.Type),
			"related_id": n.RelatedEntityID,
		})
	}
}

func (r *NotificationRouter) dashboard(message string) {
	payload := map[string]any{"message": message}
	r.transport.Publish(realtime.RoleChannel(domain.RoleAdmin), realtime.EventDashboardUpdate, payload)
	r.transport.Publish(realtime.RoleChannel(domain.RoleAgent), realtime.EventDashboardUpdate, payload)
}

func (r *NotificationRouter) usersByRole(ctx context.Context, role domain.Role) []domain.User {
	users, err := r.users.ListByRole(ctx, role)
	if err != nil {
		r.logger.Error("list recipients by role", zap.String("role", string(role)), zap.Error(err))
		return nil
	}
	return users
}

func (r *NotificationRouter) agentsOf(ctx context.Context, departmentID string) []domain.User {
	if departmentID == "" {
		return nil
	}
	users, err := r.users.ListByRoleAndDepartment(ctx, domain.RoleAgent, departmentID)
	if err != nil {
		r.logger.Error("list department agents", zap.String("department_id", departmentID), zap.Error(err))
		return nil
	}
	return users
}

package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	maskedValue = "********"
	systemActor = "system"

	targetTicket = "ticket"
)

var sensitiveKeys = []string{"password", "secret", "token"}

// AuditTarget identifies the entity an entry is about.
type AuditTarget struct {
	Type string
	ID   string
}

// ActivityAuditLog writes the append-only audit trail. Recording never fails
// the caller: errors are logged and counted.
type ActivityAuditLog struct {
	repo    repository.ActivityRepository
	tickets repository.TicketRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

// ActivityLogDependencies bundles collaborators for the audit log.
type ActivityLogDependencies struct {
	ActivityRepo repository.ActivityRepository
	TicketRepo   repository.TicketRepository
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Clock        func() time.Time
}

// NewActivityAuditLog constructs the audit log.
func NewActivityAuditLog(deps ActivityLogDependencies) *ActivityAuditLog {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ActivityAuditLog{
		repo:    deps.ActivityRepo,
		tickets: deps.TicketRepo,
		logger:  logger,
		metrics: deps.Metrics,
		clock:   clock,
	}
}

// Record appends an entry with secrets masked in both value snapshots.
func (a *ActivityAuditLog) Record(ctx context.Context, actor domain.Principal, action domain.ActivityAction, description string, target AuditTarget, oldValue, newValue map[string]any) {
	entry := &domain.ActivityLogEntry{
		ActionType:  action,
		Description: description,
		TargetType:  target.Type,
		TargetID:    target.ID,
		OldValue:    MaskSecrets(oldValue),
		NewValue:    MaskSecrets(newValue),
		CreatedAt:   a.clock().UTC(),
	}
	if actor.IsSystem() || actor.ID == "" {
		entry.ActorUsername = systemActor
		entry.ActorRole = systemActor
	} else {
		id := actor.ID
		entry.ActorID = &id
		entry.ActorUsername = actor.Username
		entry.ActorRole = string(actor.Role)
	}

	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Error("append activity log",
			zap.String("action", string(action)),
			zap.String("target_type", target.Type),
			zap.String("target_id", target.ID),
			zap.Error(err))
		a.metrics.RecordAuditFailure()
	}
}

// List returns audit entries for staff.
func (a *ActivityAuditLog) List(ctx context.Context, principal domain.Principal, filter repository.ActivityFilter) ([]domain.ActivityLogEntry, error) {
	if !principal.Role.IsStaff() {
		return nil, apperrors.NewForbidden("activity log is restricted to staff")
	}
	return a.repo.List(ctx, filter)
}

// ListForTicket returns the trail of one ticket to anyone who may view it.
func (a *ActivityAuditLog) ListForTicket(ctx context.Context, principal domain.Principal, ticketID string, limit, offset int) ([]domain.ActivityLogEntry, error) {
	ticket, err := loadTicket(ctx, a.tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, ticket, auth.View); err != nil {
		return nil, err
	}
	targetType := targetTicket
	return a.repo.List(ctx, repository.ActivityFilter{
		TargetType: &targetType,
		TargetID:   &ticket.ID,
		Limit:      limit,
		Offset:     offset,
	})
}

// MaskSecrets returns a copy of values with every key that looks like a
// credential replaced, at any depth.
func MaskSecrets(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, val := range values {
		if isSensitiveKey(key) {
			out[key] = maskedValue
			continue
		}
		out[key] = maskValue(val)
	}
	return out
}

func maskValue(val any) any {
	switch typed := val.(type) {
	case map[string]any:
		return MaskSecrets(typed)
	case []any:
		masked := make([]any, len(typed))
		for i, item := range typed {
			masked[i] = maskValue(item)
		}
		return masked
	default:
		return val
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, candidate := range sensitiveKeys {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}

// The methods below make the audit log an events.Visitor.

func (a *ActivityAuditLog) VisitTicketCreated(ctx context.Context, e events.TicketCreated) error {
	a.Record(ctx, e.Actor, domain.ActionTicketCreated, "ticket created: "+e.Ticket.Title,
		ticketTarget(e.Ticket), nil, map[string]any{
			"title":         e.Ticket.Title,
			"priority":      string(e.Ticket.Priority),
			"status":        string(e.Ticket.Status),
			"department_id": e.Ticket.DepartmentID,
			"owner_user_id": e.Ticket.OwnerUserID,
		})
	return nil
}

func (a *ActivityAuditLog) VisitTicketAssigned(ctx context.Context, e events.TicketAssigned) error {
	action := domain.ActionTicketAssigned
	description := "ticket self-assigned"
	if e.Reassignment {
		action = domain.ActionTicketReassigned
		description = "ticket reassigned"
	}
	a.Record(ctx, e.Actor, action, description, ticketTarget(e.Ticket),
		map[string]any{"status": string(e.PreviousStatus), "assigned_agent_id": optional(e.PreviousAgentID)},
		map[string]any{"status": string(e.Ticket.Status), "assigned_agent_id": optional(e.Ticket.AssignedAgentID)})
	return nil
}

func (a *ActivityAuditLog) VisitTicketResolved(ctx context.Context, e events.TicketResolved) error {
	a.Record(ctx, e.Actor, domain.ActionTicketResolved, "ticket resolved", ticketTarget(e.Ticket),
		map[string]any{"status": string(domain.TicketStatusInProgress)},
		map[string]any{"status": string(e.Ticket.Status), "resolved_at": optionalTime(e.Ticket.ResolvedAt)})
	return nil
}

func (a *ActivityAuditLog) VisitTicketReopened(ctx context.Context, e events.TicketReopened) error {
	a.Record(ctx, e.Actor, domain.ActionTicketReopened, "ticket reopened", ticketTarget(e.Ticket),
		map[string]any{"status": string(domain.TicketStatusResolved), "assigned_agent_id": optional(e.PreviousAgentID)},
		map[string]any{"status": string(e.Ticket.Status), "assigned_agent_id": nil})
	return nil
}

func (a *ActivityAuditLog) VisitTicketClosed(ctx context.Context, e events.TicketClosed) error {
	action := domain.ActionTicketClosed
	description := "ticket closed"
	if e.Reason == domain.ClosureAutoInactivity {
		action = domain.ActionTicketAutoClosed
		description = "ticket closed automatically after inactivity"
	}
	a.Record(ctx, e.Actor, action, description, ticketTarget(e.Ticket),
		map[string]any{"status": string(domain.TicketStatusResolved)},
		map[string]any{
			"status":         string(e.Ticket.Status),
			"closure_reason": string(e.Reason),
			"closed_at":      optionalTime(e.Ticket.ClosedAt),
		})
	return nil
}

func (a *ActivityAuditLog) VisitTicketDeleted(ctx context.Context, e events.TicketDeleted) error {
	a.Record(ctx, e.Actor, domain.ActionTicketDeleted, "ticket deleted: "+e.Ticket.Title, ticketTarget(e.Ticket),
		map[string]any{
			"title":         e.Ticket.Title,
			"status":        string(e.Ticket.Status),
			"owner_user_id": e.Ticket.OwnerUserID,
		}, nil)
	return nil
}

func (a *ActivityAuditLog) VisitCommentAdded(ctx context.Context, e events.CommentAdded) error {
	a.Record(ctx, e.Actor, domain.ActionCommentAdded, "comment added", ticketTarget(e.Ticket), nil,
		map[string]any{"comment_id": e.Comment.ID, "is_internal": e.Comment.IsInternal})
	return nil
}

func (a *ActivityAuditLog) VisitCommentDeleted(ctx context.Context, e events.CommentDeleted) error {
	a.Record(ctx, e.Actor, domain.ActionCommentDeleted, "comment deleted", ticketTarget(e.Ticket),
		map[string]any{"comment_id": e.Comment.ID, "text": e.Comment.Text, "is_internal": e.Comment.IsInternal}, nil)
	return nil
}

func (a *ActivityAuditLog) VisitFeedbackSubmitted(ctx context.Context, e events.FeedbackSubmitted) error {
	a.Record(ctx, e.Actor, domain.ActionFeedbackSubmitted, "feedback submitted", ticketTarget(e.Ticket), nil,
		map[string]any{"rating": e.Feedback.Rating, "comment": e.Feedback.Comment})
	return nil
}

var _ events.Visitor = (*ActivityAuditLog)(nil)

func ticketTarget(t domain.Ticket) AuditTarget {
	return AuditTarget{Type: targetTicket, ID: t.ID}
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StateMachine is the only writer of ticket status and assignment. Every
// operation loads a snapshot, checks visibility, the lifecycle graph and the
// policy, then applies a guarded update so a stale snapshot can never
// overwrite a concurrent change. Each successful operation publishes exactly
// one event.
type StateMachine struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// StateMachineDependencies bundles collaborators for the state machine.
type StateMachineDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewStateMachine constructs the state machine.
func NewStateMachine(deps StateMachineDependencies) *StateMachine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &StateMachine{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		clock:      clock,
	}
}

// Transition moves a ticket to status to, dispatching to the operation that
// owns that edge.
func (m *StateMachine) Transition(ctx context.Context, principal domain.Principal, ticketID string, to domain.TicketStatus) (*domain.Ticket, error) {
	switch to {
	case domain.TicketStatusInProgress:
		return m.SelfAssign(ctx, principal, ticketID)
	case domain.TicketStatusResolved:
		return m.Resolve(ctx, principal, ticketID)
	case domain.TicketStatusClosed:
		return m.Close(ctx, principal, ticketID)
	case domain.TicketStatusOpen:
		return m.Reopen(ctx, principal, ticketID)
	default:
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(to)})
	}
}

// SelfAssign claims an unclaimed open ticket for the caller. When several
// agents race, exactly one guarded write succeeds and the rest get a
// conflict saying the ticket is already assigned.
func (m *StateMachine) SelfAssign(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := m.snapshot(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedAgentID != nil {
		return nil, conflict(MsgAlreadyAssigned, ticket)
	}
	if ticket.Status != domain.TicketStatusOpen {
		return nil, invalidTransition(ticket, domain.TicketStatusInProgress)
	}
	if err := auth.Authorize(principal, ticket, auth.Assign); err != nil {
		return nil, err
	}

	updated, ok, err := m.tickets.AssignIfUnclaimed(ctx, ticket.ID, principal.ID, m.now())
	if err != nil {
		return nil, fmt.Errorf("assign ticket: %w", err)
	}
	if !ok {
		return nil, conflict(MsgAlreadyAssigned, ticket)
	}

	m.publish(ctx, events.TicketAssigned{
		Meta:           events.NewMeta(updated.ID, principal, m.now()),
		Ticket:         *updated,
		PreviousStatus: ticket.Status,
	})
	return updated, nil
}

// Reassign hands an open or in-progress ticket to another agent or admin.
// An open ticket moves to in-progress.
func (m *StateMachine) Reassign(ctx context.Context, principal domain.Principal, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := m.snapshot(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusInProgress {
		return nil, conflict("ticket cannot be reassigned in its current status", ticket)
	}
	if ticket.IsAssignedTo(agentID) {
		return nil, conflict("ticket is already assigned to this agent", ticket)
	}
	if err := auth.Authorize(principal, ticket, auth.Reassign); err != nil {
		return nil, err
	}
	if err := m.checkAssignee(ctx, agentID); err != nil {
		return nil, err
	}

	updated, ok, err := m.tickets.Reassign(ctx, repository.ReassignParams{
		TicketID:      ticket.ID,
		ExpectStatus:  ticket.Status,
		ExpectAgentID: ticket.AssignedAgentID,
		NewAgentID:    agentID,
		NewStatus:     domain.TicketStatusInProgress,
		At:            m.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("reassign ticket: %w", err)
	}
	if !ok {
		return nil, conflict(MsgConcurrentChange, ticket)
	}

	m.publish(ctx, events.TicketAssigned{
		Meta:            events.NewMeta(updated.ID, principal, m.now()),
		Ticket:          *updated,
		PreviousStatus:  ticket.Status,
		PreviousAgentID: ticket.AssignedAgentID,
		Reassignment:    true,
	})
	return updated, nil
}

// Resolve moves in-progress to resolved and stamps resolved_at.
func (m *StateMachine) Resolve(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := m.guardTransition(ctx, principal, ticketID, domain.TicketStatusInProgress, domain.TicketStatusResolved)
	if err != nil {
		return nil, err
	}
	now := m.now()
	updated, err := m.apply(ctx, ticket, repository.TransitionParams{
		TicketID:      ticket.ID,
		From:          domain.TicketStatusInProgress,
		To:            domain.TicketStatusResolved,
		At:            now,
		SetResolvedAt: true,
		ResolvedAt:    &now,
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TicketResolved{
		Meta:   events.NewMeta(updated.ID, principal, now),
		Ticket: *updated,
	})
	return updated, nil
}

// Close moves resolved to closed with a manual closure reason.
func (m *StateMachine) Close(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := m.guardTransition(ctx, principal, ticketID, domain.TicketStatusResolved, domain.TicketStatusClosed)
	if err != nil {
		return nil, err
	}
	now := m.now()
	reason := domain.ClosureManual
	updated, err := m.apply(ctx, ticket, repository.TransitionParams{
		TicketID:      ticket.ID,
		From:          domain.TicketStatusResolved,
		To:            domain.TicketStatusClosed,
		At:            now,
		ClosedAt:      &now,
		ClosureReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TicketClosed{
		Meta:   events.NewMeta(updated.ID, principal, now),
		Ticket: *updated,
		Reason: reason,
	})
	return updated, nil
}

// Reopen moves resolved back to open. The resolution timestamp is cleared,
// and so is the assignment since an open ticket is never assigned; the
// released agent travels on the event.
func (m *StateMachine) Reopen(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := m.guardTransition(ctx, principal, ticketID, domain.TicketStatusResolved, domain.TicketStatusOpen)
	if err != nil {
		return nil, err
	}
	now := m.now()
	updated, err := m.apply(ctx, ticket, repository.TransitionParams{
		TicketID:      ticket.ID,
		From:          domain.TicketStatusResolved,
		To:            domain.TicketStatusOpen,
		At:            now,
		SetResolvedAt: true,
		ClearAssignee: true,
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TicketReopened{
		Meta:            events.NewMeta(updated.ID, principal, now),
		Ticket:          *updated,
		PreviousAgentID: ticket.AssignedAgentID,
	})
	return updated, nil
}

// AutoClose closes a resolved ticket on behalf of the system when it has not
// been touched since idleSince. It reports false, without error, when the
// ticket no longer qualifies. note is recorded as a system comment.
func (m *StateMachine) AutoClose(ctx context.Context, ticketID string, idleSince time.Time, note string) (*domain.Ticket, bool, error) {
	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load ticket: %w", err)
	}
	if ticket.Status != domain.TicketStatusResolved {
		return nil, false, nil
	}

	now := m.now()
	reason := domain.ClosureAutoInactivity
	updated, ok, err := m.tickets.Transition(ctx, repository.TransitionParams{
		TicketID:      ticket.ID,
		From:          domain.TicketStatusResolved,
		To:            domain.TicketStatusClosed,
		At:            now,
		ClosedAt:      &now,
		ClosureReason: &reason,
		IdleSince:     &idleSince,
	})
	if err != nil {
		return nil, false, fmt.Errorf("auto-close ticket: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	if note != "" && m.comments != nil {
		comment := &domain.Comment{TicketID: updated.ID, Text: note, CreatedAt: now}
		if err := m.comments.Create(ctx, comment); err != nil {
			m.logger.Warn("record auto-close comment", zap.String("ticket_id", updated.ID), zap.Error(err))
		}
	}
	m.publish(ctx, events.TicketClosed{
		Meta:   events.NewMeta(updated.ID, domain.SystemPrincipal, now),
		Ticket: *updated,
		Reason: reason,
	})
	return updated, true, nil
}

// snapshot loads the ticket and requires the caller to be able to see it.
func (m *StateMachine) snapshot(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := loadTicket(ctx, m.tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, ticket, auth.View); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (m *StateMachine) guardTransition(ctx context.Context, principal domain.Principal, ticketID string, from, to domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := m.snapshot(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != from || !domain.CanTransition(from, to) {
		return nil, invalidTransition(ticket, to)
	}
	if err := auth.Authorize(principal, ticket, auth.Transition(from, to)); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (m *StateMachine) apply(ctx context.Context, ticket *domain.Ticket, params repository.TransitionParams) (*domain.Ticket, error) {
	updated, ok, err := m.tickets.Transition(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transition ticket: %w", err)
	}
	if !ok {
		return nil, conflict(MsgConcurrentChange, ticket)
	}
	return updated, nil
}

func (m *StateMachine) checkAssignee(ctx context.Context, agentID string) error {
	if agentID == "" {
		return apperrors.NewValidationError("assignee is required", map[string]any{"agent_id": "required"})
	}
	user, err := m.users.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return fmt.Errorf("load assignee: %w", err)
	}
	if !user.IsActive || !user.Role.IsStaff() {
		return apperrors.NewValidationError("assignee must be an active agent or admin", map[string]any{"agent_id": agentID})
	}
	return nil
}

func (m *StateMachine) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Error("publish event",
			zap.String("event_kind", string(event.Kind())),
			zap.String("ticket_id", event.Metadata().TicketID),
			zap.Error(err))
	}
}

func (m *StateMachine) now() time.Time {
	return m.clock().UTC()
}

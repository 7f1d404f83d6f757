package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Kind names an event type for logs and metrics.
type Kind string

const (
	KindTicketCreated     Kind = "ticket_created"
	KindTicketAssigned    Kind = "ticket_assigned"
	KindTicketResolved    Kind = "ticket_resolved"
	KindTicketReopened    Kind = "ticket_reopened"
	KindTicketClosed      Kind = "ticket_closed"
	KindTicketDeleted     Kind = "ticket_deleted"
	KindCommentAdded      Kind = "comment_added"
	KindCommentDeleted    Kind = "comment_deleted"
	KindFeedbackSubmitted Kind = "feedback_submitted"
)

// Event is the closed set of domain events. Consumers implement Visitor, so
// adding an event type breaks every consumer that does not handle it.
type Event interface {
	Kind() Kind
	Metadata() Meta
	Accept(ctx context.Context, v Visitor) error
}

// Visitor handles each domain event type.
type Visitor interface {
	VisitTicketCreated(ctx context.Context, e TicketCreated) error
	VisitTicketAssigned(ctx context.Context, e TicketAssigned) error
	VisitTicketResolved(ctx context.Context, e TicketResolved) error
	VisitTicketReopened(ctx context.Context, e TicketReopened) error
	VisitTicketClosed(ctx context.Context, e TicketClosed) error
	VisitTicketDeleted(ctx context.Context, e TicketDeleted) error
	VisitCommentAdded(ctx context.Context, e CommentAdded) error
	VisitCommentDeleted(ctx context.Context, e CommentDeleted) error
	VisitFeedbackSubmitted(ctx context.Context, e FeedbackSubmitted) error
}

// Meta carries fields shared by every event.
type Meta struct {
	ID         string
	TicketID   string
	Actor      domain.Principal
	OccurredAt time.Time
}

// NewMeta stamps a fresh event envelope.
func NewMeta(ticketID string, actor domain.Principal, at time.Time) Meta {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Meta{ID: uuid.NewString(), TicketID: ticketID, Actor: actor, OccurredAt: at}
}

// Metadata returns the envelope.
func (m Meta) Metadata() Meta { return m }

// TicketCreated is emitted once a ticket row exists.
type TicketCreated struct {
	Meta
	Ticket domain.Ticket
}

// TicketAssigned covers self-assignment and reassignment.
type TicketAssigned struct {
	Meta
	Ticket          domain.Ticket
	PreviousStatus  domain.TicketStatus
	PreviousAgentID *string
	Reassignment    bool
}

// TicketResolved is emitted on in-progress -> resolved.
type TicketResolved struct {
	Meta
	Ticket domain.Ticket
}

// TicketReopened is emitted on resolved -> open. PreviousAgentID is the
// agent whose assignment was released.
type TicketReopened struct {
	Meta
	Ticket          domain.Ticket
	PreviousAgentID *string
}

// TicketClosed is emitted on resolved -> closed, manual or automatic.
type TicketClosed struct {
	Meta
	Ticket domain.Ticket
	Reason domain.ClosureReason
}

// TicketDeleted is emitted after an admin hard delete.
type TicketDeleted struct {
	Meta
	Ticket domain.Ticket
}

// CommentAdded is emitted for every new comment, internal or not.
type CommentAdded struct {
	Meta
	Ticket     domain.Ticket
	Comment    domain.Comment
	AuthorRole domain.Role
}

// CommentDeleted is emitted after a comment is removed.
type CommentDeleted struct {
	Meta
	Ticket     domain.Ticket
	Comment    domain.Comment
	AuthorRole domain.Role
}

// FeedbackSubmitted is emitted when a client rates a ticket.
type FeedbackSubmitted struct {
	Meta
	Ticket   domain.Ticket
	Feedback domain.Feedback
}

func (TicketCreated) Kind() Kind     { return KindTicketCreated }
func (TicketAssigned) Kind() Kind    { return KindTicketAssigned }
func (TicketResolved) Kind() Kind    { return KindTicketResolved }
func (TicketReopened) Kind() Kind    { return KindTicketReopened }
func (TicketClosed) Kind() Kind      { return KindTicketClosed }
func (TicketDeleted) Kind() Kind     { return KindTicketDeleted }
func (CommentAdded) Kind() Kind      { return KindCommentAdded }
func (CommentDeleted) Kind() Kind    { return KindCommentDeleted }
func (FeedbackSubmitted) Kind() Kind { return KindFeedbackSubmitted }

func (e TicketCreated) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketCreated(ctx, e)
}

func (e TicketAssigned) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketAssigned(ctx, e)
}

func (e TicketResolved) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketResolved(ctx, e)
}

func (e TicketReopened) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketReopened(ctx, e)
}

func (e TicketClosed) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketClosed(ctx, e)
}

func (e TicketDeleted) Accept(ctx context.Context, v Visitor) error {
	return v.VisitTicketDeleted(ctx, e)
}

func (e CommentAdded) Accept(ctx context.Context, v Visitor) error {
	return v.VisitCommentAdded(ctx, e)
}

func (e CommentDeleted) Accept(ctx context.Context, v Visitor) error {
	return v.VisitCommentDeleted(ctx, e)
}

func (e FeedbackSubmitted) Accept(ctx context.Context, v Visitor) error {
	return v.VisitFeedbackSubmitted(ctx, e)
}

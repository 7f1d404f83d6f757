package domain

import "time"

// ActivityAction identifies what an audit entry records.
type ActivityAction string

const (
	ActionTicketCreated     ActivityAction = "TICKET_CREATED"
	ActionTicketAssigned    ActivityAction = "TICKET_ASSIGNED"
	ActionTicketReassigned  ActivityAction = "TICKET_REASSIGNED"
	ActionTicketResolved    ActivityAction = "TICKET_RESOLVED"
	ActionTicketReopened    ActivityAction = "TICKET_REOPENED"
	ActionTicketClosed      ActivityAction = "TICKET_CLOSED"
	ActionTicketAutoClosed  ActivityAction = "TICKET_AUTO_CLOSED"
	ActionTicketDeleted     ActivityAction = "TICKET_DELETED"
	ActionCommentAdded      ActivityAction = "COMMENT_ADDED"
	ActionCommentDeleted    ActivityAction = "COMMENT_DELETED"
	ActionFeedbackSubmitted ActivityAction = "FEEDBACK_SUBMITTED"
)

// ActivityLogEntry is an immutable audit trail entry. A nil ActorID marks
// the system actor.
type ActivityLogEntry struct {
	ID            string
	ActorID       *string
	ActorUsername string
	ActorRole     string
	ActionType    ActivityAction
	Description   string
	TargetType    string
	TargetID      string
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}

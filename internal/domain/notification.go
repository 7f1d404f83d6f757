package domain

import "time"

// NotificationType classifies inbox entries.
type NotificationType string

const (
	NotificationTicketCreated     NotificationType = "ticket_created"
	NotificationTicketAssigned    NotificationType = "ticket_assigned"
	NotificationTicketResolved    NotificationType = "ticket_resolved"
	NotificationTicketReopened    NotificationType = "ticket_reopened"
	NotificationTicketClosed      NotificationType = "ticket_closed"
	NotificationNewComment        NotificationType = "new_comment"
	NotificationCommentDeleted    NotificationType = "comment_deleted"
	NotificationFeedbackSubmitted NotificationType = "feedback_submitted"
)

// Notification is a persisted inbox entry owned by its recipient.
type Notification struct {
	ID                string
	RecipientUserID   string
	Message           string
	Type              NotificationType
	RelatedEntityType string
	RelatedEntityID   string
	IsRead            bool
	CreatedAt         time.Time
}

package domain

import "time"

// Feedback is a client's one-time rating of a finished ticket.
type Feedback struct {
	ID        string
	TicketID  string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// ClosureReason records why a ticket reached closed.
type ClosureReason string

const (
	ClosureManual         ClosureReason = "MANUAL"
	ClosureAutoInactivity ClosureReason = "AUTO_INACTIVITY"
)

// Ticket is the aggregate for support requests.
//
// ResolvedAt is the single resolution timestamp: it is set whenever the
// ticket enters resolved, kept through closed and cleared on reopen.
type Ticket struct {
	ID              string
	Title           string
	Description     string
	Priority        TicketPriority
	Status          TicketStatus
	CategoryID      *string
	DepartmentID    string
	LocationID      *string
	OwnerUserID     string
	AssignedAgentID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	ClosureReason   *ClosureReason
}

// IsAssignedTo reports whether the ticket is assigned to userID.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedAgentID != nil && *t.AssignedAgentID == userID
}

// Unclaimed reports whether the ticket can be self-assigned.
func (t *Ticket) Unclaimed() bool {
	return t.Status == TicketStatusOpen && t.AssignedAgentID == nil
}

// ticketTransitions is the lifecycle graph. Closed is terminal.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusResolved},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusOpen},
	TicketStatusClosed:     {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to TicketStatus) bool {
	for _, candidate := range ticketTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionsFrom lists the statuses reachable from s in one step.
func TransitionsFrom(s TicketStatus) []TicketStatus {
	return append([]TicketStatus(nil), ticketTransitions[s]...)
}

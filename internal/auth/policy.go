package auth

import (
	"fmt"
	"net/http"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// ActionKind enumerates what a principal may do to a ticket.
type ActionKind string

const (
	ActionView       ActionKind = "view"
	ActionComment    ActionKind = "comment"
	ActionAssign     ActionKind = "assign"
	ActionReassign   ActionKind = "reassign"
	ActionTransition ActionKind = "transition"
	ActionDelete     ActionKind = "delete"
)

// Action is a single permission. From and To are only set for transitions.
type Action struct {
	Kind ActionKind
	From domain.TicketStatus
	To   domain.TicketStatus
}

func (a Action) String() string {
	if a.Kind == ActionTransition {
		return fmt.Sprintf("transition(%s,%s)", a.From, a.To)
	}
	return string(a.Kind)
}

var (
	View     = Action{Kind: ActionView}
	Comment  = Action{Kind: ActionComment}
	Assign   = Action{Kind: ActionAssign}
	Reassign = Action{Kind: ActionReassign}
	Delete   = Action{Kind: ActionDelete}
)

// Transition builds the action for moving a ticket from -> to.
func Transition(from, to domain.TicketStatus) Action {
	return Action{Kind: ActionTransition, From: from, To: to}
}

// ActionSet is the result of a policy decision.
type ActionSet map[Action]struct{}

// Allows reports whether a is in the set.
func (s ActionSet) Allows(a Action) bool {
	_, ok := s[a]
	return ok
}

func (s ActionSet) add(actions ...Action) {
	for _, a := range actions {
		s[a] = struct{}{}
	}
}

var allStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusInProgress,
	domain.TicketStatusResolved,
	domain.TicketStatusClosed,
}

// PermittedActions is the single access-control decision for tickets. It is
// pure: the result depends only on the principal and the ticket snapshot.
func PermittedActions(p domain.Principal, t *domain.Ticket) ActionSet {
	set := ActionSet{}
	if t == nil {
		return set
	}

	switch p.Role {
	case domain.RoleAdmin:
		set.add(View, Comment, Assign, Reassign, Delete)
		for _, from := range allStatuses {
			for _, to := range domain.TransitionsFrom(from) {
				set.add(Transition(from, to))
			}
		}
	case domain.RoleAgent:
		if !agentHasAccess(p, t) {
			return set
		}
		set.add(View, Comment, Reassign,
			Transition(domain.TicketStatusInProgress, domain.TicketStatusResolved),
			Transition(domain.TicketStatusResolved, domain.TicketStatusClosed),
		)
		if t.Unclaimed() {
			set.add(Assign, Transition(domain.TicketStatusOpen, domain.TicketStatusInProgress))
		}
	case domain.RoleClient:
		if p.ID == "" || t.OwnerUserID != p.ID {
			return set
		}
		set.add(View, Comment,
			Transition(domain.TicketStatusResolved, domain.TicketStatusClosed),
			Transition(domain.TicketStatusResolved, domain.TicketStatusOpen),
		)
	}
	return set
}

// Authorize fails with a FORBIDDEN error when a is not permitted.
func Authorize(p domain.Principal, t *domain.Ticket, a Action) error {
	if PermittedActions(p, t).Allows(a) {
		return nil
	}
	details := map[string]any{"action": a.String()}
	if t != nil {
		details["ticket_id"] = t.ID
	}
	return apperrors.NewDomainError(apperrors.CodeForbidden, "action not permitted", http.StatusForbidden, details)
}

func agentHasAccess(p domain.Principal, t *domain.Ticket) bool {
	if p.ID != "" && t.IsAssignedTo(p.ID) {
		return true
	}
	return p.DepartmentID != "" && p.DepartmentID == t.DepartmentID
}

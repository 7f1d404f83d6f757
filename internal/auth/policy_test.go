package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func strPtr(s string) *string { return &s }

var (
	admin       = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin, DepartmentID: "dept-x"}
	agentSame   = domain.Principal{ID: "agent-1", Role: domain.RoleAgent, DepartmentID: "dept-1"}
	agentOther  = domain.Principal{ID: "agent-2", Role: domain.RoleAgent, DepartmentID: "dept-2"}
	owner       = domain.Principal{ID: "client-1", Role: domain.RoleClient}
	otherClient = domain.Principal{ID: "client-2", Role: domain.RoleClient}
)

func ticketIn(status domain.TicketStatus, assignee *string) *domain.Ticket {
	return &domain.Ticket{
		ID:              "t-1",
		Status:          status,
		DepartmentID:    "dept-1",
		OwnerUserID:     "client-1",
		AssignedAgentID: assignee,
	}
}

func TestAdminMayDoEverything(t *testing.T) {
	set := PermittedActions(admin, ticketIn(domain.TicketStatusResolved, strPtr("agent-1")))
	for _, a := range []Action{View, Comment, Assign, Reassign, Delete,
		Transition(domain.TicketStatusOpen, domain.TicketStatusInProgress),
		Transition(domain.TicketStatusInProgress, domain.TicketStatusResolved),
		Transition(domain.TicketStatusResolved, domain.TicketStatusClosed),
		Transition(domain.TicketStatusResolved, domain.TicketStatusOpen),
	} {
		assert.True(t, set.Allows(a), "admin should be allowed %s", a)
	}
	assert.False(t, set.Allows(Transition(domain.TicketStatusClosed, domain.TicketStatusOpen)),
		"closed is terminal even for admins")
}

func TestAgentAccessByDepartmentOrAssignment(t *testing.T) {
	open := ticketIn(domain.TicketStatusOpen, nil)

	same := PermittedActions(agentSame, open)
	assert.True(t, same.Allows(View))
	assert.True(t, same.Allows(Comment))
	assert.True(t, same.Allows(Assign))
	assert.True(t, same.Allows(Reassign))
	assert.False(t, same.Allows(Delete))

	assert.Empty(t, PermittedActions(agentOther, open))

	assigned := ticketIn(domain.TicketStatusInProgress, strPtr("agent-2"))
	other := PermittedActions(agentOther, assigned)
	assert.True(t, other.Allows(View), "the assigned agent keeps access outside their department")
	assert.True(t, other.Allows(Transition(domain.TicketStatusInProgress, domain.TicketStatusResolved)))
}

func TestAgentSelfAssignOnlyWhenUnclaimed(t *testing.T) {
	cases := []struct {
		name    string
		ticket  *domain.Ticket
		allowed bool
	}{
		{"open unassigned", ticketIn(domain.TicketStatusOpen, nil), true},
		{"in progress", ticketIn(domain.TicketStatusInProgress, strPtr("agent-9")), false},
		{"resolved", ticketIn(domain.TicketStatusResolved, strPtr("agent-9")), false},
		{"closed", ticketIn(domain.TicketStatusClosed, strPtr("agent-9")), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, PermittedActions(agentSame, tc.ticket).Allows(Assign))
		})
	}
}

func TestAgentCannotReopen(t *testing.T) {
	set := PermittedActions(agentSame, ticketIn(domain.TicketStatusResolved, strPtr("agent-1")))
	assert.True(t, set.Allows(Transition(domain.TicketStatusResolved, domain.TicketStatusClosed)))
	assert.False(t, set.Allows(Transition(domain.TicketStatusResolved, domain.TicketStatusOpen)))
}

func TestClientOwnerPermissions(t *testing.T) {
	set := PermittedActions(owner, ticketIn(domain.TicketStatusResolved, strPtr("agent-1")))
	assert.True(t, set.Allows(View))
	assert.True(t, set.Allows(Comment))
	assert.True(t, set.Allows(Transition(domain.TicketStatusResolved, domain.TicketStatusClosed)))
	assert.True(t, set.Allows(Transition(domain.TicketStatusResolved, domain.TicketStatusOpen)))
	assert.False(t, set.Allows(Transition(domain.TicketStatusInProgress, domain.TicketStatusResolved)))
	assert.False(t, set.Allows(Assign))
	assert.False(t, set.Allows(Reassign))
	assert.False(t, set.Allows(Delete))
}

func TestNonOwnerClientIsDeniedEverything(t *testing.T) {
	statuses := []domain.TicketStatus{
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed,
	}
	for _, status := range statuses {
		tk := ticketIn(status, nil)
		actions := []Action{View, Comment, Assign, Reassign, Delete}
		for _, to := range domain.TransitionsFrom(status) {
			actions = append(actions, Transition(status, to))
		}
		for _, a := range actions {
			err := Authorize(otherClient, tk, a)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "%s on %s", a, status)
		}
	}
}

func TestAuthorizeNilTicketAndUnknownRole(t *testing.T) {
	assert.Error(t, Authorize(admin, nil, View))
	assert.Error(t, Authorize(domain.Principal{ID: "x", Role: "auditor"}, ticketIn(domain.TicketStatusOpen, nil), View))
	assert.NoError(t, Authorize(owner, ticketIn(domain.TicketStatusOpen, nil), View))
}

package repotest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type ticketRepo struct {
	s *Store
}

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket.ID = uuid.NewString()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.tickets[ticket.ID] = *ticket
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r *ticketRepo) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[id]; !ok {
		return 0, nil
	}
	delete(r.s.tickets, id)
	delete(r.s.feedback, id)
	kept := r.s.comments[:0]
	for _, c := range r.s.comments {
		if c.TicketID != id {
			kept = append(kept, c)
		}
	}
	r.s.comments = kept
	return 1, nil
}

func (r *ticketRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
		r.s.tickets[id] = t
	}
	return nil
}

func (r *ticketRepo) ListStaleResolved(_ context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.Status == domain.TicketStatusResolved && !t.UpdatedAt.After(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return page(out, limit, 0, 100), nil
}

func (r *ticketRepo) AssignIfUnclaimed(_ context.Context, id, agentID string, at time.Time) (*domain.Ticket, bool, error) {
	r.beforeWrite(id)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpen || t.AssignedAgentID != nil {
		return nil, false, nil
	}
	agent := agentID
	t.AssignedAgentID = &agent
	t.Status = domain.TicketStatusInProgress
	t.UpdatedAt = at
	r.s.tickets[id] = t
	return &t, true, nil
}

func (r *ticketRepo) Reassign(_ context.Context, p repository.ReassignParams) (*domain.Ticket, bool, error) {
	r.beforeWrite(p.TicketID)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[p.TicketID]
	if !ok || t.Status != p.ExpectStatus || !sameAgent(t.AssignedAgentID, p.ExpectAgentID) {
		return nil, false, nil
	}
	agent := p.NewAgentID
	t.AssignedAgentID = &agent
	t.Status = p.NewStatus
	t.UpdatedAt = p.At
	r.s.tickets[p.TicketID] = t
	return &t, true, nil
}

func (r *ticketRepo) Transition(_ context.Context, p repository.TransitionParams) (*domain.Ticket, bool, error) {
	r.beforeWrite(p.TicketID)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[p.TicketID]
	if !ok || t.Status != p.From {
		return nil, false, nil
	}
	if p.IdleSince != nil && t.UpdatedAt.After(*p.IdleSince) {
		return nil, false, nil
	}
	t.Status = p.To
	if p.SetResolvedAt {
		t.ResolvedAt = copyTime(p.ResolvedAt)
	}
	t.ClosedAt = copyTime(p.ClosedAt)
	if p.ClosureReason != nil {
		reason := *p.ClosureReason
		t.ClosureReason = &reason
	} else {
		t.ClosureReason = nil
	}
	if p.ClearAssignee {
		t.AssignedAgentID = nil
	}
	t.UpdatedAt = p.At
	r.s.tickets[p.TicketID] = t
	return &t, true, nil
}

func (r *ticketRepo) List(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if matchesTicket(t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return page(out, f.Limit, f.Offset, 20), nil
}

func (r *ticketRepo) beforeWrite(id string) {
	if hook := r.s.BeforeTicketWrite; hook != nil {
		hook(id)
	}
}

func matchesTicket(t domain.Ticket, f repository.TicketFilter) bool {
	if f.OwnerUserID != nil && t.OwnerUserID != *f.OwnerUserID {
		return false
	}
	if f.DepartmentID != nil && t.DepartmentID != *f.DepartmentID {
		return false
	}
	if f.AssignedAgentID != nil && !t.IsAssignedTo(*f.AssignedAgentID) {
		return false
	}
	if f.AgentScope != nil && t.DepartmentID != f.AgentScope.DepartmentID && !t.IsAssignedTo(f.AgentScope.AgentID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

func sameAgent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

package repotest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *userRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if u.IsActive && u.Role == role {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

func (r *userRepo) ListByRoleAndDepartment(_ context.Context, role domain.Role, departmentID string) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if u.IsActive && u.Role == role && u.DepartmentID != nil && *u.DepartmentID == departmentID {
			out = append(out, u)
		}
	}
	sortUsers(out)
	return out, nil
}

type departmentRepo struct {
	s *Store
}

func (r *departmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

type commentRepo struct {
	s *Store
}

func (r *commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[comment.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	comment.ID = uuid.NewString()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	r.s.comments = append(r.s.comments, *comment)
	return nil
}

func (r *commentRepo) GetByID(_ context.Context, id string) (*domain.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.comments {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// ListByTicket keeps insertion order, which matches created_at order for
// comments written through one clock.
func (r *commentRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Comment
	for _, c := range r.s.comments {
		if c.TicketID != ticketID || (c.IsInternal && !includeInternal) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *commentRepo) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, c := range r.s.comments {
		if c.ID == id {
			r.s.comments = append(r.s.comments[:i], r.s.comments[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type feedbackRepo struct {
	s *Store
}

func (r *feedbackRepo) Create(_ context.Context, fb *domain.Feedback) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.feedback[fb.TicketID]; exists {
		return repository.ErrDuplicate
	}
	fb.ID = uuid.NewString()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	r.s.feedback[fb.TicketID] = *fb
	return nil
}

func (r *feedbackRepo) GetByTicket(_ context.Context, ticketID string) (*domain.Feedback, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fb, ok := r.s.feedback[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &fb, nil
}

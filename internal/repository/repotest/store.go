// Package repotest provides in-memory repositories with the same guard
// semantics as the Postgres implementations. Useful for tests.
package repotest

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Store holds every table behind one mutex so cascades stay consistent.
type Store struct {
	mu sync.Mutex

	tickets       map[string]domain.Ticket
	comments      []domain.Comment
	users         map[string]domain.User
	departments   map[string]domain.Department
	notifications []domain.Notification
	feedback      map[string]domain.Feedback
	activity      []domain.ActivityLogEntry

	failNotify   map[string]error
	failActivity error

	// BeforeTicketWrite runs before every guarded ticket write, outside the
	// lock. Tests use it to interleave a competing writer.
	BeforeTicketWrite func(ticketID string)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:     make(map[string]domain.Ticket),
		users:       make(map[string]domain.User),
		departments: make(map[string]domain.Department),
		feedback:    make(map[string]domain.Feedback),
		failNotify:  make(map[string]error),
	}
}

func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s: s} }

func (s *Store) Comments() repository.CommentRepository { return &commentRepo{s: s} }

func (s *Store) Users() repository.UserRepository { return &userRepo{s: s} }

func (s *Store) Departments() repository.DepartmentRepository { return &departmentRepo{s: s} }

func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepo{s: s}
}

func (s *Store) Feedback() repository.FeedbackRepository { return &feedbackRepo{s: s} }

func (s *Store) Activity() repository.ActivityRepository { return &activityRepo{s: s} }

// AddUser seeds a directory user, assigning an id when empty.
func (s *Store) AddUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return u
}

// AddDepartment seeds a department, assigning an id when empty.
func (s *Store) AddDepartment(d domain.Department) domain.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.departments[d.ID] = d
	return d
}

// PutTicket writes a ticket row unconditionally.
func (s *Store) PutTicket(t domain.Ticket) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.tickets[t.ID] = t
	return t
}

// Ticket returns the stored row.
func (s *Store) Ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}

// FailNotificationsFor makes notification inserts for recipientID fail.
func (s *Store) FailNotificationsFor(recipientID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = errors.New("notification insert failed")
	}
	s.failNotify[recipientID] = err
}

// FailActivity makes every audit append fail with err. Pass nil to reset.
func (s *Store) FailActivity(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failActivity = err
}

// AllNotifications returns every stored notification in insertion order.
func (s *Store) AllNotifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// AllActivity returns every audit entry in insertion order.
func (s *Store) AllActivity() []domain.ActivityLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityLogEntry(nil), s.activity...)
}

// AllComments returns comments on ticketID in insertion order.
func (s *Store) AllComments(ticketID string) []domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Comment
	for _, c := range s.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out
}

func page[T any](items []T, limit, offset, def int) []T {
	if limit <= 0 {
		limit = def
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func sortUsers(users []domain.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

func timePtr(t time.Time) *time.Time { return &t }

package repotest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type notificationRepo struct {
	s *Store
}

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failNotify[n.RecipientUserID]; err != nil {
		return err
	}
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *notificationRepo) ListByRecipient(_ context.Context, recipientID string, f repository.NotificationFilter) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.RecipientUserID != recipientID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset, 50), nil
}

func (r *notificationRepo) CountUnread(_ context.Context, recipientID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, n := range r.s.notifications {
		if n.RecipientUserID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, id, recipientID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, n := range r.s.notifications {
		if n.ID == id && n.RecipientUserID == recipientID {
			r.s.notifications[i].IsRead = true
			return 1, nil
		}
	}
	return 0, nil
}

func (r *notificationRepo) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed int64
	for i, n := range r.s.notifications {
		if n.RecipientUserID == recipientID && !n.IsRead {
			r.s.notifications[i].IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *notificationRepo) Delete(_ context.Context, id, recipientID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, n := range r.s.notifications {
		if n.ID == id && n.RecipientUserID == recipientID {
			r.s.notifications = append(r.s.notifications[:i], r.s.notifications[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type activityRepo struct {
	s *Store
}

func (r *activityRepo) Append(_ context.Context, entry *domain.ActivityLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failActivity != nil {
		return r.s.failActivity
	}
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.s.activity = append(r.s.activity, *entry)
	return nil
}

func (r *activityRepo) List(_ context.Context, f repository.ActivityFilter) ([]domain.ActivityLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ActivityLogEntry
	for _, e := range r.s.activity {
		switch {
		case f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID):
			continue
		case f.ActionType != nil && e.ActionType != *f.ActionType:
			continue
		case f.TargetType != nil && e.TargetType != *f.TargetType:
			continue
		case f.TargetID != nil && e.TargetID != *f.TargetID:
			continue
		case f.From != nil && e.CreatedAt.Before(*f.From):
			continue
		case f.To != nil && e.CreatedAt.After(*f.To):
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Limit, f.Offset, 50), nil
}

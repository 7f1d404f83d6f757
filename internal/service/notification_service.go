package service

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NotificationService is the recipient-facing inbox. Every call is scoped to
// the caller, so foreign ids behave as not found.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// List pages the caller's inbox, newest first.
func (n *NotificationService) List(ctx context.Context, principal domain.Principal, filter repository.NotificationFilter) ([]domain.Notification, error) {
	return n.notifications.ListByRecipient(ctx, principal.ID, filter)
}

// UnreadCount reports unread entries.
func (n *NotificationService) UnreadCount(ctx context.Context, principal domain.Principal) (int, error) {
	return n.notifications.CountUnread(ctx, principal.ID)
}

// MarkRead flags one entry as read.
func (n *NotificationService) MarkRead(ctx context.Context, principal domain.Principal, id string) error {
	affected, err := n.notifications.MarkRead(ctx, id, principal.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	return nil
}

// MarkAllRead flags every entry as read and reports how many changed.
func (n *NotificationService) MarkAllRead(ctx context.Context, principal domain.Principal) (int64, error) {
	return n.notifications.MarkAllRead(ctx, principal.ID)
}

// Delete removes one entry.
func (n *NotificationService) Delete(ctx context.Context, principal domain.Principal, id string) error {
	affected, err := n.notifications.Delete(ctx, id, principal.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	return nil
}

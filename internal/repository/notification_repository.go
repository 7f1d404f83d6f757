package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationFilter pages a recipient's inbox.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository persists inbox entries. Every mutation is scoped to
// the recipient so a user can never touch someone else's notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, filter NotificationFilter) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository constructs repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_user_id, message, type, related_entity_type, related_entity_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		n.RecipientUserID,
		n.Message,
		n.Type,
		n.RelatedEntityType,
		n.RelatedEntityID,
		n.CreatedAt,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, filter NotificationFilter) ([]domain.Notification, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	const query = `
        SELECT id, recipient_user_id, message, type, related_entity_type, related_entity_id, is_read, created_at
        FROM notifications
        WHERE recipient_user_id=$1 AND (NOT $2::boolean OR NOT is_read)
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, recipientID, filter.UnreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id=$1 AND NOT is_read`,
		recipientID,
	).Scan(&count)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_user_id=$2`,
		id, recipientID,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE WHERE recipient_user_id=$1 AND NOT is_read`,
		recipientID,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, recipientID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id=$1 AND recipient_user_id=$2`,
		id, recipientID,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientUserID,
		&n.Message,
		&n.Type,
		&n.RelatedEntityType,
		&n.RelatedEntityID,
		&n.IsRead,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

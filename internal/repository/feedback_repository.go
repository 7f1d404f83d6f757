package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// FeedbackRepository stores one rating per ticket. Create returns
// ErrDuplicate when the ticket already has feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *domain.Feedback) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.Feedback, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository constructs repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

func (r *feedbackRepository) Create(ctx context.Context, feedback *domain.Feedback) error {
	const query = `
        INSERT INTO feedback (ticket_id, user_id, rating, comment, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		feedback.TicketID,
		feedback.UserID,
		feedback.Rating,
		feedback.Comment,
		feedback.CreatedAt,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	return mapUniqueViolation(err)
}

func (r *feedbackRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Feedback, error) {
	const query = `
        SELECT id, ticket_id, user_id, rating, comment, created_at
        FROM feedback WHERE ticket_id=$1`
	var fb domain.Feedback
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&fb.ID,
		&fb.TicketID,
		&fb.UserID,
		&fb.Rating,
		&fb.Comment,
		&fb.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &fb, nil
}

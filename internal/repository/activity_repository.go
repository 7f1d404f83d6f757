package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ActivityFilter narrows audit log queries.
type ActivityFilter struct {
	ActorID    *string
	ActionType *domain.ActivityAction
	TargetType *string
	TargetID   *string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ActivityRepository is the append-only audit store.
type ActivityRepository interface {
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error
	List(ctx context.Context, filter ActivityFilter) ([]domain.ActivityLogEntry, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	const query = `
        INSERT INTO activity_logs (actor_id, actor_username, actor_role, action_type, description,
                                   target_type, target_id, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.ActorID,
		entry.ActorUsername,
		entry.ActorRole,
		entry.ActionType,
		entry.Description,
		entry.TargetType,
		entry.TargetID,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]domain.ActivityLogEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	add := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if filter.ActorID != nil {
		add("actor_id=$%d", *filter.ActorID)
	}
	if filter.ActionType != nil {
		add("action_type=$%d", *filter.ActionType)
	}
	if filter.TargetType != nil {
		add("target_type=$%d", *filter.TargetType)
	}
	if filter.TargetID != nil {
		add("target_id=$%d", *filter.TargetID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`
        SELECT id, actor_id, actor_username, actor_role, action_type, description,
               target_type, target_id, old_value, new_value, created_at
        FROM activity_logs WHERE %s
        ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`,
		strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityLogEntry
	for rows.Next() {
		var entry domain.ActivityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.ActorUsername,
			&entry.ActorRole,
			&entry.ActionType,
			&entry.Description,
			&entry.TargetType,
			&entry.TargetID,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

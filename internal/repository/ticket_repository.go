package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	OwnerUserID     *string
	DepartmentID    *string
	AssignedAgentID *string
	// AgentScope restricts results to tickets in the agent's department or
	// assigned to the agent.
	AgentScope  *AgentScope
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// AgentScope identifies the tickets an agent may see.
type AgentScope struct {
	AgentID      string
	DepartmentID string
}

// ReassignParams describes a guarded assignee change.
type ReassignParams struct {
	TicketID      string
	ExpectStatus  domain.TicketStatus
	ExpectAgentID *string
	NewAgentID    string
	NewStatus     domain.TicketStatus
	At            time.Time
}

// TransitionParams describes a guarded status change. The write applies only
// while the row is still in From (and, with IdleSince, untouched since then).
type TransitionParams struct {
	TicketID      string
	From          domain.TicketStatus
	To            domain.TicketStatus
	At            time.Time
	SetResolvedAt bool
	ResolvedAt    *time.Time
	ClosedAt      *time.Time
	ClosureReason *domain.ClosureReason
	ClearAssignee bool
	IdleSince     *time.Time
}

// TicketRepository encapsulates ticket persistence. Guarded writes return the
// row as committed; ok is false when the guard no longer matched.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) (int64, error)
	Touch(ctx context.Context, id string, at time.Time) error
	ListStaleResolved(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
	AssignIfUnclaimed(ctx context.Context, id, agentID string, at time.Time) (*domain.Ticket, bool, error)
	Reassign(ctx context.Context, params ReassignParams) (*domain.Ticket, bool, error)
	Transition(ctx context.Context, params TransitionParams) (*domain.Ticket, bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, priority, status, category_id, department_id, location_id,
               owner_user_id, assigned_agent_id, created_at, updated_at, resolved_at, closed_at, closure_reason`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, priority, status, category_id, department_id, location_id,
                             owner_user_id, assigned_agent_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.CategoryID,
		ticket.DepartmentID,
		ticket.LocationID,
		ticket.OwnerUserID,
		ticket.AssignedAgentID,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketRepository) Touch(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET updated_at=GREATEST(updated_at, $2) WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListStaleResolved(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status=$1 AND updated_at <= $2
        ORDER BY updated_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusResolved, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) AssignIfUnclaimed(ctx context.Context, id, agentID string, at time.Time) (*domain.Ticket, bool, error) {
	query := `
        UPDATE tickets SET assigned_agent_id=$2, status=$3, updated_at=$4
        WHERE id=$1 AND status=$5 AND assigned_agent_id IS NULL
        RETURNING ` + ticketColumns
	return guardedRow(r.pool.QueryRow(ctx, query, id, agentID, domain.TicketStatusInProgress, at, domain.TicketStatusOpen))
}

func (r *ticketRepository) Reassign(ctx context.Context, p ReassignParams) (*domain.Ticket, bool, error) {
	query := `
        UPDATE tickets SET assigned_agent_id=$2, status=$3, updated_at=$4
        WHERE id=$1 AND status=$5 AND assigned_agent_id IS NOT DISTINCT FROM $6::uuid
        RETURNING ` + ticketColumns
	return guardedRow(r.pool.QueryRow(ctx, query, p.TicketID, p.NewAgentID, p.NewStatus, p.At, p.ExpectStatus, p.ExpectAgentID))
}

func (r *ticketRepository) Transition(ctx context.Context, p TransitionParams) (*domain.Ticket, bool, error) {
	query := `
        UPDATE tickets SET
            status=$3,
            resolved_at = CASE WHEN $4::boolean THEN $5::timestamptz ELSE resolved_at END,
            closed_at=$6,
            closure_reason=$7,
            assigned_agent_id = CASE WHEN $8::boolean THEN NULL ELSE assigned_agent_id END,
            updated_at=$9
        WHERE id=$1 AND status=$2 AND ($10::timestamptz IS NULL OR updated_at <= $10::timestamptz)
        RETURNING ` + ticketColumns
	return guardedRow(r.pool.QueryRow(ctx, query,
		p.TicketID,
		p.From,
		p.To,
		p.SetResolvedAt,
		p.ResolvedAt,
		p.ClosedAt,
		p.ClosureReason,
		p.ClearAssignee,
		p.At,
		p.IdleSince,
	))
}

// guardedRow scans the row returned by a guarded UPDATE. No row means the
// guard did not match.
func guardedRow(row pgx.Row) (*domain.Ticket, bool, error) {
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerUserID != nil {
		args = append(args, *filter.OwnerUserID)
		clauses = append(clauses, fmt.Sprintf("owner_user_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if filter.AgentScope != nil {
		args = append(args, filter.AgentScope.DepartmentID, filter.AgentScope.AgentID)
		clauses = append(clauses, fmt.Sprintf("(department_id::text=$%d OR assigned_agent_id::text=$%d)", len(args)-1, len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset, 20)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CategoryID,
		&ticket.DepartmentID,
		&ticket.LocationID,
		&ticket.OwnerUserID,
		&ticket.AssignedAgentID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.ClosureReason,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func normalizePage(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Conflict messages surfaced to callers.
const (
	MsgAlreadyAssigned   = "ticket already assigned"
	MsgConcurrentChange  = "ticket was modified concurrently"
	MsgInvalidTransition = "transition not allowed from current status"
)

func loadTicket(ctx context.Context, tickets repository.TicketRepository, id string) (*domain.Ticket, error) {
	ticket, err := tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return ticket, nil
}

func conflict(message string, t *domain.Ticket) error {
	return apperrors.NewConflict(message, map[string]any{
		"ticket_id": t.ID,
		"status":    string(t.Status),
	})
}

func invalidTransition(t *domain.Ticket, to domain.TicketStatus) error {
	return apperrors.NewConflict(MsgInvalidTransition, map[string]any{
		"ticket_id": t.ID,
		"from":      string(t.Status),
		"to":        string(to),
	})
}

package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// LifecycleHandler exposes state machine operations.
type LifecycleHandler struct {
	machine *service.StateMachine
}

// NewLifecycleHandler constructs handler.
func NewLifecycleHandler(machine *service.StateMachine) *LifecycleHandler {
	return &LifecycleHandler{machine: machine}
}

type ticketOp func(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error)

func (h *LifecycleHandler) run(c *fiber.Ctx, op ticketOp) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ticket, err := op(c.UserContext(), principal, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /tickets/:id/assign claims the ticket for the caller.
func (h *LifecycleHandler) Assign(c *fiber.Ctx) error {
	return h.run(c, h.machine.SelfAssign)
}

// Resolve POST /tickets/:id/resolve.
func (h *LifecycleHandler) Resolve(c *fiber.Ctx) error {
	return h.run(c, h.machine.Resolve)
}

// Close POST /tickets/:id/close.
func (h *LifecycleHandler) Close(c *fiber.Ctx) error {
	return h.run(c, h.machine.Close)
}

// Reopen POST /tickets/:id/reopen.
func (h *LifecycleHandler) Reopen(c *fiber.Ctx) error {
	return h.run(c, h.machine.Reopen)
}

// Reassign POST /tickets/:id/reassign.
func (h *LifecycleHandler) Reassign(c *fiber.Ctx) error {
	var req dto.ReassignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.run(c, func(ctx context.Context, p domain.Principal, id string) (*domain.Ticket, error) {
		return h.machine.Reassign(ctx, p, id, req.AgentID)
	})
}

// ChangeStatus PATCH /tickets/:id/status.
func (h *LifecycleHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.StatusChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if !req.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": "ticket_status"})
	}
	return h.run(c, func(ctx context.Context, p domain.Principal, id string) (*domain.Ticket, error) {
		return h.machine.Transition(ctx, p, id, req.Status)
	})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// ActivityHandler exposes the audit trail.
type ActivityHandler struct {
	audit *service.ActivityAuditLog
}

// NewActivityHandler constructs handler.
func NewActivityHandler(audit *service.ActivityAuditLog) *ActivityHandler {
	return &ActivityHandler{audit: audit}
}

// List GET /activity.
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter := repository.ActivityFilter{
		ActorID:    optionalQuery(c, "actor_id"),
		TargetType: optionalQuery(c, "target_type"),
		TargetID:   optionalQuery(c, "target_id"),
		From:       parseTime(c.Query("from")),
		To:         parseTime(c.Query("to")),
	}
	if action := optionalQuery(c, "action_type"); action != nil {
		kind := domain.ActivityAction(*action)
		filter.ActionType = &kind
	}
	filter.Limit, filter.Offset = pagination(c)

	entries, err := h.audit.List(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResponses(entries)})
}

// ListForTicket GET /tickets/:id/activity.
func (h *ActivityHandler) ListForTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	entries, err := h.audit.ListForTicket(c.UserContext(), principal, ticketID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": activityResponses(entries)})
}

func activityResponses(entries []domain.ActivityLogEntry) []dto.ActivityResponse {
	items := make([]dto.ActivityResponse, 0, len(entries))
	for i := range entries {
		items = append(items, activityResponse(&entries[i]))
	}
	return items
}

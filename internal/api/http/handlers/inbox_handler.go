package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// InboxHandler serves the caller's notifications.
type InboxHandler struct {
	inbox *service.NotificationService
}

// NewInboxHandler constructs handler.
func NewInboxHandler(inbox *service.NotificationService) *InboxHandler {
	return &InboxHandler{inbox: inbox}
}

// List GET /notifications.
func (h *InboxHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter := repository.NotificationFilter{UnreadOnly: c.QueryBool("unread")}
	filter.Limit, filter.Offset = pagination(c)
	list, err := h.inbox.List(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		items = append(items, notificationResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UnreadCount GET /notifications/unread-count.
func (h *InboxHandler) UnreadCount(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	count, err := h.inbox.UnreadCount(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"unread": count}})
}

// MarkRead POST /notifications/:id/read.
func (h *InboxHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	notificationID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.inbox.MarkRead(c.UserContext(), principal, notificationID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all.
func (h *InboxHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	changed, err := h.inbox.MarkAllRead(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": changed}})
}

// Delete DELETE /notifications/:id.
func (h *InboxHandler) Delete(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	notificationID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.inbox.Delete(c.UserContext(), principal, notificationID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
	"github.com/spec-kit/helpdesk-service/pkg/util/validation"
)

var requestValidator = validation.New()

func requirePrincipal(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return requestValidator.Struct(out)
}

// idParam returns the named path parameter. Identifiers are UUIDs.
func idParam(c *fiber.Ctx, name string) (string, error) {
	raw := c.Params(name)
	if _, err := uuid.Parse(raw); err != nil {
		return "", apperrors.NewValidationError("invalid "+name, map[string]any{name: "uuid"})
	}
	return raw, nil
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pagination reads page/page_size and returns limit and offset.
func pagination(c *fiber.Ctx) (int, int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		Status:          t.Status,
		CategoryID:      t.CategoryID,
		DepartmentID:    t.DepartmentID,
		LocationID:      t.LocationID,
		OwnerUserID:     t.OwnerUserID,
		AssignedAgentID: t.AssignedAgentID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		ResolvedAt:      t.ResolvedAt,
		ClosedAt:        t.ClosedAt,
		ClosureReason:   t.ClosureReason,
	}
}

func commentResponse(cm *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         cm.ID,
		TicketID:   cm.TicketID,
		AuthorID:   cm.AuthorID,
		Text:       cm.Text,
		IsInternal: cm.IsInternal,
		CreatedAt:  cm.CreatedAt,
	}
}

func feedbackResponse(fb *domain.Feedback) dto.FeedbackResponse {
	return dto.FeedbackResponse{
		ID:        fb.ID,
		TicketID:  fb.TicketID,
		UserID:    fb.UserID,
		Rating:    fb.Rating,
		Comment:   fb.Comment,
		CreatedAt: fb.CreatedAt,
	}
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:                n.ID,
		Message:           n.Message,
		Type:              n.Type,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		IsRead:            n.IsRead,
		CreatedAt:         n.CreatedAt,
	}
}

func activityResponse(e *domain.ActivityLogEntry) dto.ActivityResponse {
	return dto.ActivityResponse{
		ID:            e.ID,
		ActorID:       e.ActorID,
		ActorUsername: e.ActorUsername,
		ActorRole:     e.ActorRole,
		ActionType:    e.ActionType,
		Description:   e.Description,
		TargetType:    e.TargetType,
		TargetID:      e.TargetID,
		OldValue:      e.OldValue,
		NewValue:      e.NewValue,
		CreatedAt:     e.CreatedAt,
	}
}

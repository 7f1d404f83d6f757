package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
)

// UsersHandler exposes caller identity.
type UsersHandler struct{}

// NewUsersHandler constructs handler.
func NewUsersHandler() *UsersHandler {
	return &UsersHandler{}
}

// Me handles GET /me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PrincipalResponse{
		ID:           principal.ID,
		Username:     principal.Username,
		Role:         principal.Role,
		CompanyID:    principal.CompanyID,
		DepartmentID: principal.DepartmentID,
	}})
}

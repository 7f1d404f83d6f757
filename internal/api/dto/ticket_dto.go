package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID string                `json:"department_id" validate:"omitempty,uuid"`
	CategoryID   *string               `json:"category_id" validate:"omitempty,uuid"`
	LocationID   *string               `json:"location_id" validate:"omitempty,uuid"`
	OwnerUserID  string                `json:"owner_user_id" validate:"omitempty,uuid"`
}

// ReassignRequest names the agent to hand a ticket to.
type ReassignRequest struct {
	AgentID string `json:"agent_id" validate:"required,uuid"`
}

// StatusChangeRequest moves a ticket along the lifecycle graph.
type StatusChangeRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Priority        domain.TicketPriority `json:"priority"`
	Status          domain.TicketStatus   `json:"status"`
	CategoryID      *string               `json:"category_id"`
	DepartmentID    string                `json:"department_id"`
	LocationID      *string               `json:"location_id"`
	OwnerUserID     string                `json:"owner_user_id"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
	ClosureReason   *domain.ClosureReason `json:"closure_reason"`
}

package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationResponse is an inbox entry.
type NotificationResponse struct {
	ID                string                  `json:"id"`
	Message           string                  `json:"message"`
	Type              domain.NotificationType `json:"type"`
	RelatedEntityType string                  `json:"related_entity_type"`
	RelatedEntityID   string                  `json:"related_entity_id"`
	IsRead            bool                    `json:"is_read"`
	CreatedAt         time.Time               `json:"created_at"`
}

// ActivityResponse is an audit trail entry.
type ActivityResponse struct {
	ID            string                `json:"id"`
	ActorID       *string               `json:"actor_id"`
	ActorUsername string                `json:"actor_username"`
	ActorRole     string                `json:"actor_role"`
	ActionType    domain.ActivityAction `json:"action_type"`
	Description   string                `json:"description"`
	TargetType    string                `json:"target_type"`
	TargetID      string                `json:"target_id"`
	OldValue      map[string]any        `json:"old_value"`
	NewValue      map[string]any        `json:"new_value"`
	CreatedAt     time.Time             `json:"created_at"`
}

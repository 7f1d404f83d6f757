package dto

import "github.com/spec-kit/helpdesk-service/internal/domain"

// PrincipalResponse describes the authenticated caller.
type PrincipalResponse struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Role         domain.Role `json:"role"`
	CompanyID    string      `json:"company_id,omitempty"`
	DepartmentID string      `json:"department_id,omitempty"`
}

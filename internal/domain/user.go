package domain

import "time"

// Role enumerates principal roles.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// IsStaff reports whether the role works tickets.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is the directory record for anyone who can sign in. Users are
// managed outside this service; tickets only read them.
type User struct {
	ID           string
	Username     string
	Email        string
	Role         Role
	CompanyID    *string
	DepartmentID *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

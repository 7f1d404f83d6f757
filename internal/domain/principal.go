package domain

// Principal is the authenticated caller resolved from a credential.
type Principal struct {
	ID           string
	Username     string
	Role         Role
	CompanyID    string
	DepartmentID string
}

// SystemPrincipal is the actor used for scheduled transitions.
var SystemPrincipal = Principal{Username: "system", Role: RoleAdmin}

// IsSystem reports whether p is the scheduled-job actor.
func (p Principal) IsSystem() bool {
	return p.ID == "" && p.Username == SystemPrincipal.Username
}

package models

import "time"

// Role is the coarse role supplied by the identity collaborator.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleSalesHead  Role = "Sales Head"
	RoleSalesAgent Role = "Sales Agent"
	RoleTelecaller Role = "Telecaller"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleSalesHead, RoleSalesAgent, RoleTelecaller}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// User is an agent that enquiries can be assigned to.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	Team      string    `json:"team,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentUser is the acting user injected by the auth layer.
type CurrentUser struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// HasRole reports whether the user holds one of the given roles.
func (u CurrentUser) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

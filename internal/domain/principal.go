package domain

import "github.com/google/uuid"

// Role selects which operations a caller may perform.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
	RoleOperator  Role = "operator"
)

// IsValid returns true if the role is a recognized value.
func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleProvider, RoleOperator:
		return true
	}
	return false
}

// Principal is an already authenticated caller.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Is returns true if the principal has the given role.
func (p Principal) Is(role Role) bool {
	return p.Role == role
}

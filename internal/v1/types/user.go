package types

import "github.com/google/uuid"

// Role is a user's permission level. Unlike the teacher's RoleType (which
// encoded a participant's role within one call), this Role is a static
// account attribute managed by the external identity source.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is read-only to this core: the identity source (§1 credential
// verifier / an external directory) owns creation and deactivation.
type User struct {
	ID          uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"isActive"`
}

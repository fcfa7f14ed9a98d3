package authmodel

import "strings"

// Role is the authorization level of an identity
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole maps a server role name onto a Role, defaulting to viewer
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	default:
		return RoleViewer
	}
}

// Identity is the authenticated user as reported by the auth API
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
	Role          Role   `json:"role"`
}

// Valid reports whether the identity carries the fields a session needs
func (i *Identity) Valid() bool {
	return i != nil && i.ID != "" && i.Email != ""
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

package domain

import (
	"context"
	"time"
)

// Roles. SYSTEM_ADMIN exists only in the system store; the others only in
// tenant stores.
const (
	RoleSystemAdmin = "SYSTEM_ADMIN"
	RoleAdmin       = "ADMIN"
	RoleStaff       = "STAFF"
	RoleViewer      = "VIEWER"
)

// Scope says which store a user or session belongs to.
type Scope string

const (
	ScopeSystem Scope = "system"
	ScopeTenant Scope = "tenant"
)

// ValidRole reports whether role can be assigned to a user in scope.
func ValidRole(scope Scope, role string) bool {
	switch scope {
	case ScopeSystem:
		return role == RoleSystemAdmin
	case ScopeTenant:
		return role == RoleAdmin || role == RoleStaff || role == RoleViewer
	default:
		return false
	}
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"` // bcrypt
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByLogin matches identifier against username or email.
	GetByLogin(ctx context.Context, identifier string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

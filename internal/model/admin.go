package model

import (
	"strings"
	"time"

	"github.com/kidvue/gatekeeper/internal/rbac"
)

// Admin represents a privileged account on the Kidvue admin platform.
// Passwords are stored as bcrypt hashes. Admins are soft-disabled via
// IsActive rather than deleted; a SUPER_ADMIN can never be banned or
// deleted by another actor.
type Admin struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name           string     `json:"name" db:"name"`
	Role           rbac.Role  `json:"role" db:"role"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" db:"token_expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsSuperAdmin reports whether the admin holds the top role.
func (a *Admin) IsSuperAdmin() bool {
	return a.Role == rbac.RoleSuperAdmin
}

// NormalizeEmail lowercases and trims an email address. All store lookups
// and uniqueness checks operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package model

import "time"

// User is a non-privileged parent account. Users and admins are separate
// identity tables; an admin may share a user's email, in which case the
// token service resolves a single effective identity at issuance time.
// Users are soft-deleted so child profiles and screen-time history keep
// a valid owner reference.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string    `json:"name" db:"name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	IsDeleted    bool      `json:"is_deleted" db:"is_deleted"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

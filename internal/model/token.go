package model

import (
	"time"

	"github.com/kidvue/gatekeeper/internal/rbac"
)

// Token kinds stored in token_records.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// TokenRecord is the persisted side of an issued token, keyed by the
// token's unique identifier (jti). Every verification consults this
// record, so revocation takes effect on the next check rather than at
// the next refresh.
type TokenRecord struct {
	JTI       string     `json:"jti" db:"jti"`
	SubjectID string     `json:"subject_id" db:"subject_id"`
	Kind      string     `json:"kind" db:"kind"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Revoked   bool       `json:"revoked" db:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"` // seconds until the access token expires
}

// Identity is the single effective identity resolved at issuance time
// from the user and admin tables. SubjectID is the user ID when a user
// record exists, otherwise the admin ID.
type Identity struct {
	SubjectID string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	AdminID   string    `json:"adminId,omitempty"`
}

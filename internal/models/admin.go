package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser represents an internal CRM user
type AdminUser struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Username      string     `json:"username" db:"username"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"` // SECURITY: never expose in API responses
	FirstName     string     `json:"first_name" db:"first_name"`
	LastName      string     `json:"last_name" db:"last_name"`
	Role          string     `json:"role" db:"role"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	LastLogin     *time.Time `json:"last_login" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Admin roles
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleUser       = "USER"
	RoleDeveloper  = "DEVELOPER"
)

// ValidRole reports whether role is one of the known admin roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleDeveloper:
		return true
	}
	return false
}

// Session backs an admin bearer token. Only the SHA-256 digest of the token
// is stored; lookup is always by digest, never by the raw token.
type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	IPAddress string    `json:"-" db:"ip_address"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PasswordResetToken is a one-time token for the admin password reset flow.
type PasswordResetToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Token     string     `json:"-" db:"token"` // SECURITY: never expose reset tokens
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Used      bool       `json:"used" db:"used"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AccessLog is an append-only audit row for admin authentication activity.
type AccessLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id" db:"user_id"`
	Action    string     `json:"action" db:"action"`
	Status    string     `json:"status" db:"status"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	UserAgent string     `json:"user_agent" db:"user_agent"`
	Details   string     `json:"details" db:"details"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AccessLog statuses
const (
	LogStatusSuccess = "SUCCESS"
	LogStatusFailed  = "FAILED"
)

package models

import (
	"time"

	"github.com/google/uuid"
)

// ClientAccess represents a client's portal account. Before activation the row
// carries an activation token and no password hash; activation consumes the
// token and installs the hash. Exactly one of the two is set at any time.
type ClientAccess struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	ContactID         uuid.UUID  `json:"contact_id" db:"contact_id"`
	LinkedQuoteID     *uuid.UUID `json:"linked_quote_id" db:"linked_quote_id"`
	Username          string     `json:"username" db:"username"`
	PasswordHash      *string    `json:"-" db:"password_hash"`
	TemporaryPassword *string    `json:"-" db:"temporary_password"` // plaintext, one-time momentary access
	EmailVerified     bool       `json:"email_verified" db:"email_verified"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	ActivationToken   *string    `json:"-" db:"activation_token"` // raw token or JSON blob {code, expiresAt}
	ActivationExpires *time.Time `json:"-" db:"activation_expires"`
	AccessType        string     `json:"access_type" db:"access_type"`
	LastLogin         *time.Time `json:"last_login" db:"last_login"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`

	Contact *Contact      `json:"contact,omitempty"`
	Quote   *QuoteSummary `json:"quote,omitempty"`
}

// Client access types
const (
	AccessTypeQuoteOnly  = "QUOTE_ONLY"
	AccessTypeFullClient = "FULL_CLIENT"
)

// Contact is the CRM contact a client account belongs to.
type Contact struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	Phone     *string   `json:"phone" db:"phone"`
	Company   *string   `json:"company" db:"company"`
}

// FullName returns the contact's display name.
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// QuoteSummary is the slim quote projection linked to a QUOTE_ONLY account.
type QuoteSummary struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Number string    `json:"number" db:"number"`
	Status string    `json:"status" db:"status"`
	Total  float64   `json:"total" db:"total"`
}

// EmailVerificationCode is an append-only row for 6-digit email codes.
// Rows are never deleted; the selection rule is "most recent unverified,
// unexpired, matching code".
type EmailVerificationCode struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	Code       string     `json:"-" db:"code"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	Verified   bool       `json:"verified" db:"verified"`
	VerifiedAt *time.Time `json:"verified_at" db:"verified_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the code can no longer be used. A code whose
// expiry equals the current instant is still valid; only a strictly earlier
// expiry counts as expired.
func (e *EmailVerificationCode) IsExpired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// ClientActivityLog is the append-only audit row for client portal activity.
type ClientActivityLog struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ClientAccessID *uuid.UUID `json:"client_access_id" db:"client_access_id"`
	Action         string     `json:"action" db:"action"`
	Status         string     `json:"status" db:"status"`
	IPAddress      string     `json:"ip_address" db:"ip_address"`
	UserAgent      string     `json:"user_agent" db:"user_agent"`
	Details        string     `json:"details" db:"details"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// PortalView is the client-facing subset of a ClientAccess row returned by
// login and activation responses. No secrets, no activation state.
type PortalView struct {
	ID            uuid.UUID     `json:"id"`
	Username      string        `json:"username"`
	AccessType    string        `json:"access_type"`
	EmailVerified bool          `json:"email_verified"`
	Contact       *Contact      `json:"contact,omitempty"`
	Quote         *QuoteSummary `json:"quote,omitempty"`
}

// Portal returns the client-facing view of the row.
func (ca *ClientAccess) Portal() *PortalView {
	return &PortalView{
		ID:            ca.ID,
		Username:      ca.Username,
		AccessType:    ca.AccessType,
		EmailVerified: ca.EmailVerified,
		Contact:       ca.Contact,
		Quote:         ca.Quote,
	}
}

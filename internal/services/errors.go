package services

import "errors"

// Domain errors returned by the auth and activation services. Handlers map
// these to HTTP statuses and user-facing messages; the wording the caller
// sees lives in the handlers package, not here.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotActivated       = errors.New("account not activated")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrDuplicateUser      = errors.New("username or email already in use")
	ErrUserNotFound       = errors.New("user not found")

	ErrTokenNotFound = errors.New("activation token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")

	ErrAlreadyVerified = errors.New("account already verified")
	ErrNotProvisioned  = errors.New("account not provisioned for activation")
	ErrEmailMismatch   = errors.New("email does not match")
	ErrCodeInvalid     = errors.New("verification code invalid")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeNotVerified = errors.New("email code not verified")

	ErrPasswordTooShort = errors.New("password too short")
	ErrCurrentPassword  = errors.New("current password incorrect")
)

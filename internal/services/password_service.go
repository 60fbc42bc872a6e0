package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced everywhere a password is set.
const MinPasswordLength = 8

// PasswordService handles password hashing and secure token generation.
type PasswordService struct{}

// NewPasswordService creates a new password service
func NewPasswordService() *PasswordService {
	return &PasswordService{}
}

// HashPassword hashes a password using bcrypt
func (ps *PasswordService) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", errors.New("password must be at least 8 characters long")
	}

	// Cost 12: good balance of security and performance
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashedBytes), nil
}

// VerifyPassword reports whether password matches hash. Any mismatch or
// malformed hash yields false, never an error.
func (ps *PasswordService) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateResetToken generates a password reset token (64 character hex string).
func (ps *PasswordService) GenerateResetToken() (string, error) {
	return ps.generateSecureToken(32)
}

// GenerateActivationToken generates a client activation link token.
func (ps *PasswordService) GenerateActivationToken() (string, error) {
	return ps.generateSecureToken(32)
}

func (ps *PasswordService) generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken returns the hex SHA-256 digest of a bearer token. Session rows
// store this digest, never the raw token. Tokens are high-entropy random
// strings, so a fast digest is appropriate here; bcrypt is for passwords.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL applies to both admin and client tokens.
const tokenTTL = 7 * 24 * time.Hour

// AdminClaims are embedded in tokens issued to back-office users.
type AdminClaims struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// ClientClaims are embedded in tokens issued to portal clients. The Type
// field discriminates them from admin tokens during middleware checks.
type ClientClaims struct {
	ClientAccessID uuid.UUID `json:"clientAccessId"`
	ContactID      uuid.UUID `json:"contactId"`
	Username       string    `json:"username"`
	AccessType     string    `json:"accessType"`
	Type           string    `json:"type"`
	jwt.RegisteredClaims
}

// JWTService issues and validates signed tokens for both login surfaces.
type JWTService struct {
	secret []byte
}

// NewJWTService creates a JWT service. The secret must not be empty; the
// config layer refuses to start without one.
func NewJWTService(secret string) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &JWTService{secret: []byte(secret)}, nil
}

// IssueAdminToken generates a signed token for an admin user.
func (j *JWTService) IssueAdminToken(userID uuid.UUID, email, role string) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// IssueClientToken generates a signed token for a portal client.
func (j *JWTService) IssueClientToken(accessID, contactID uuid.UUID, username, accessType string) (string, error) {
	now := time.Now()
	claims := ClientClaims{
		ClientAccessID: accessID,
		ContactID:      contactID,
		Username:       username,
		AccessType:     accessType,
		Type:           "CLIENT",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accessID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseAdminToken validates a token and returns its admin claims.
func (j *JWTService) ParseAdminToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ParseClientToken validates a token and returns its client claims. Tokens
// without the CLIENT type marker are rejected even when the signature is
// valid, so an admin token can never authenticate on the client surface.
func (j *JWTService) ParseClientToken(tokenString string) (*ClientClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClientClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*ClientClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Type != "CLIENT" {
		return nil, errors.New("not a client token")
	}
	return claims, nil
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm-auth-service/internal/models"
	"crm-auth-service/internal/services"
)

// SessionStore is the session lookup the admin middleware needs.
type SessionStore interface {
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
}

// AuthMiddleware guards the two authenticated surfaces. Admin tokens are
// valid only while their session row exists; client tokens are stateless.
type AuthMiddleware struct {
	jwt      *services.JWTService
	sessions SessionStore
}

func NewAuthMiddleware(jwt *services.JWTService, sessions SessionStore) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:      jwt,
		sessions: sessions,
	}
}

// AuthRequired requires a valid admin bearer token backed by a live
// session. Logout and password reset revoke sessions, so a revoked token
// fails here even before its JWT expiry.
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			unauthorized(c)
			return
		}

		claims, err := m.jwt.ParseAdminToken(token)
		if err != nil {
			unauthorized(c)
			return
		}

		if _, err := m.sessions.GetSessionByTokenHash(c.Request.Context(), services.HashToken(token)); err != nil {
			unauthorized(c)
			return
		}

		c.Set("token", token)
		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}

// ClientAuthRequired requires a valid client bearer token. Admin tokens are
// rejected: the claim shape decides which surface a token may enter.
func (m *AuthMiddleware) ClientAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			unauthorized(c)
			return
		}

		claims, err := m.jwt.ParseClientToken(token)
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set("token", token)
		c.Set("client_claims", claims)

		c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": "Credenziali non valide",
	})
	c.Abort()
}

// GetUserID returns the authenticated admin's ID from the request context.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

// GetToken returns the raw bearer token from the request context.
func GetToken(c *gin.Context) (string, bool) {
	value, exists := c.Get("token")
	if !exists {
		return "", false
	}
	token, ok := value.(string)
	return token, ok
}

// GetClientClaims returns the authenticated client's claims from the
// request context.
func GetClientClaims(c *gin.Context) (*services.ClientClaims, bool) {
	value, exists := c.Get("client_claims")
	if !exists {
		return nil, false
	}
	claims, ok := value.(*services.ClientClaims)
	return claims, ok
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crm-auth-service/internal/middleware"
	"crm-auth-service/internal/services"
)

// ClientHandlers serves the authenticated client portal endpoints. Client
// login goes through the same unified login as the admin surface.
type ClientHandlers struct {
	auth   *services.AuthService
	logger *logrus.Logger
}

func NewClientHandlers(auth *services.AuthService, logger *logrus.Logger) *ClientHandlers {
	return &ClientHandlers{auth: auth, logger: logger}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// Login handles POST /api/client-auth/login. Same unified login as
// /api/auth/login; kept as a separate mount for the portal frontend.
func (h *ClientHandlers) Login(c *gin.Context) {
	start := time.Now()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, start, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if result.Type == "ADMIN" {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"type":    "ADMIN",
			"user":    result.Admin,
			"token":   result.Token,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"type":    "CLIENT",
		"data": gin.H{
			"token":        result.Token,
			"clientAccess": result.Client,
		},
	})
}

// Me handles GET /api/client-auth/me.
func (h *ClientHandlers) Me(c *gin.Context) {
	claims, ok := middleware.GetClientClaims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	respondSuccess(c, http.StatusOK, "", gin.H{
		"clientAccessId": claims.ClientAccessID,
		"contactId":      claims.ContactID,
		"username":       claims.Username,
		"accessType":     claims.AccessType,
	})
}

// ChangePassword handles POST /api/client-auth/change-password.
func (h *ClientHandlers) ChangePassword(c *gin.Context) {
	claims, ok := middleware.GetClientClaims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.auth.ChangeClientPassword(c.Request.Context(), claims.ClientAccessID, req.CurrentPassword, req.NewPassword, requestMeta(c)); err != nil {
		h.logger.WithFields(logrus.Fields{
			"action": "change_password",
			"error":  err.Error(),
		}).Debug("Request failed")
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Password aggiornata", nil)
}

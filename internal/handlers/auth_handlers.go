package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crm-auth-service/internal/middleware"
	"crm-auth-service/internal/services"
)

// AuthHandlers serves registration, the unified login, sessions, password
// reset and the authenticated email change.
type AuthHandlers struct {
	auth   *services.AuthService
	logger *logrus.Logger
}

func NewAuthHandlers(auth *services.AuthService, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{auth: auth, logger: logger}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type passwordResetConfirm struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type updateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type emailCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type emailVerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// Register handles POST /api/auth/register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.FirstName, req.LastName, requestMeta(c))
	if err != nil {
		h.logFailure(c, "register", err)
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, "", gin.H{
		"user":  user,
		"token": token,
	})
}

// Login handles POST /api/auth/login. The request start time is captured
// before any work so the latency floor on failures covers body parsing too.
func (h *AuthHandlers) Login(c *gin.Context) {
	start := time.Now()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, start, requestMeta(c))
	if err != nil {
		h.logFailure(c, "login", err)
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

// Logout handles POST /api/auth/logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	token, ok := middleware.GetToken(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token, requestMeta(c)); err != nil {
		h.logFailure(c, "logout", err)
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Logout effettuato", nil)
}

// Me handles GET /api/auth/me
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	user, err := h.auth.GetAdmin(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", user)
}

// UpdateMe handles PUT /api/auth/me
func (h *AuthHandlers) UpdateMe(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	user, err := h.auth.UpdateAdminProfile(c.Request.Context(), userID, req.FirstName, req.LastName)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Profilo aggiornato", user)
}

// RequestPasswordReset handles POST /api/auth/password-reset/request. The
// response is the same whether or not the email exists.
func (h *AuthHandlers) RequestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	token, err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		h.logFailure(c, "password_reset_request", err)
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}

	var data interface{}
	if token != "" {
		data = gin.H{"resetToken": token}
	}
	respondSuccess(c, http.StatusOK, "Se l'email esiste, riceverai le istruzioni per il reset", data)
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm
func (h *AuthHandlers) ConfirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.auth.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword, requestMeta(c)); err != nil {
		h.logFailure(c, "password_reset_confirm", err)
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Password aggiornata", nil)
}

// SendEmailCode handles POST /api/auth/email/send-code (authenticated email
// change, step one).
func (h *AuthHandlers) SendEmailCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	var req emailCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	code, err := h.auth.SendEmailChangeCode(c.Request.Context(), userID, req.Email)
	if err != nil {
		h.logFailure(c, "email_send_code", err)
		respondServiceError(c, err)
		return
	}

	var data interface{}
	if code != "" {
		data = gin.H{"code": code}
	}
	respondSuccess(c, http.StatusOK, "Codice inviato", data)
}

// VerifyEmailCode handles POST /api/auth/email/verify-code (authenticated
// email change, step two).
func (h *AuthHandlers) VerifyEmailCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	var req emailVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.auth.VerifyEmailChangeCode(c.Request.Context(), userID, req.Email, req.Code, requestMeta(c)); err != nil {
		h.logFailure(c, "email_verify_code", err)
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Email aggiornata", nil)
}

// logFailure records unexpected failures server-side; expected domain
// errors are left to the response mapping alone.
func (h *AuthHandlers) logFailure(c *gin.Context, action string, err error) {
	h.logger.WithFields(logrus.Fields{
		"action": action,
		"path":   c.FullPath(),
		"error":  err.Error(),
	}).Debug("Request failed")
}

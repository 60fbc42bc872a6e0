package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crm-auth-service/internal/services"
)

// ActivationHandlers serves both client activation flows. The manual flow
// handlers are mounted under several route prefixes; there is exactly one
// implementation behind all of them.
type ActivationHandlers struct {
	activation *services.ActivationService
	logger     *logrus.Logger
}

func NewActivationHandlers(activation *services.ActivationService, logger *logrus.Logger) *ActivationHandlers {
	return &ActivationHandlers{activation: activation, logger: logger}
}

type verifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type sendCodeRequest struct {
	Token string `json:"token" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type completeActivationRequest struct {
	Token    string `json:"token" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

type activationCodeRequest struct {
	Username string `json:"username" binding:"required"`
	Code     string `json:"activationCode" binding:"required"`
}

type completeManualRequest struct {
	Username string `json:"username" binding:"required"`
	Code     string `json:"activationCode" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Token flow

// VerifyToken handles POST verify-token: checks an activation link token
// and returns the account summary. Mutates nothing.
func (h *ActivationHandlers) VerifyToken(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	info, err := h.activation.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", info)
}

// SendVerificationCode handles POST send-verification-code.
func (h *ActivationHandlers) SendVerificationCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	code, err := h.activation.SendVerificationCode(c.Request.Context(), req.Token, req.Email)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	var data interface{}
	if code != "" {
		data = gin.H{"code": code}
	}
	respondSuccess(c, http.StatusOK, "Codice inviato", data)
}

// VerifyCode handles POST verify-code.
func (h *ActivationHandlers) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.activation.VerifyCode(c.Request.Context(), req.Email, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Codice verificato", nil)
}

// CompleteActivation handles POST complete-activation, the terminal step of
// the token flow.
func (h *ActivationHandlers) CompleteActivation(c *gin.Context) {
	var req completeActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	result, err := h.activation.CompleteActivation(c.Request.Context(), req.Token, req.Email, req.Password, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Account attivato", result)
}

// Manual flow

// VerifyUsername handles POST verify-username.
func (h *ActivationHandlers) VerifyUsername(c *gin.Context) {
	var req verifyUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	info, err := h.activation.VerifyUsername(c.Request.Context(), req.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", info)
}

// SendActivationCode handles POST send-activation-code.
func (h *ActivationHandlers) SendActivationCode(c *gin.Context) {
	var req verifyUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	code, err := h.activation.SendActivationCode(c.Request.Context(), req.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	var data interface{}
	if code != "" {
		data = gin.H{"code": code}
	}
	respondSuccess(c, http.StatusOK, "Codice inviato", data)
}

// VerifyActivationCode handles POST verify-activation-code. The code is not
// consumed here; completion re-validates it.
func (h *ActivationHandlers) VerifyActivationCode(c *gin.Context) {
	var req activationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := h.activation.VerifyActivationCode(c.Request.Context(), req.Username, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Codice verificato", nil)
}

// CompleteManualActivation handles POST complete-manual-activation.
func (h *ActivationHandlers) CompleteManualActivation(c *gin.Context) {
	var req completeManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	result, err := h.activation.CompleteManualActivation(c.Request.Context(), req.Username, req.Code, req.Password, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "Account attivato", result)
}

// RegisterManualRoutes mounts the manual flow handlers on a route group.
// Called once per public prefix so every mount shares the same handlers.
func (h *ActivationHandlers) RegisterManualRoutes(group *gin.RouterGroup) {
	group.POST("/verify-username", h.VerifyUsername)
	group.POST("/send-activation-code", h.SendActivationCode)
	group.POST("/verify-activation-code", h.VerifyActivationCode)
	group.POST("/complete-manual-activation", h.CompleteManualActivation)
}

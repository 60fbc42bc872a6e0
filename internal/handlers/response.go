package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-auth-service/internal/services"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Message: message})
}

// User-facing messages. The login failure message is deliberately the same
// for an unknown username and a wrong password.
const (
	msgInvalidCredentials = "Credenziali non valide"
	msgInvalidRequest     = "Dati non validi"
	msgInternalError      = "Errore interno del server"
	msgTokenInvalid       = "Token non valido"
	msgTokenExpired       = "Token scaduto"
	msgCodeInvalid        = "Codice non valido"
	msgCodeExpired        = "Codice scaduto"
)

// respondServiceError maps a service error onto a status code and an
// Italian user-facing message. Unexpected errors become a generic 500; the
// detail stays server-side.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, services.ErrAccountDisabled):
		respondError(c, http.StatusForbidden, "Account disabilitato")
	case errors.Is(err, services.ErrNotActivated), errors.Is(err, services.ErrEmailNotVerified):
		respondError(c, http.StatusForbidden, "Completa l'attivazione del tuo account")
	case errors.Is(err, services.ErrDuplicateUser):
		respondError(c, http.StatusBadRequest, "Username o email già in uso")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "Utente non trovato")
	case errors.Is(err, services.ErrTokenNotFound):
		respondError(c, http.StatusNotFound, msgTokenInvalid)
	case errors.Is(err, services.ErrTokenUsed):
		respondError(c, http.StatusBadRequest, msgTokenInvalid)
	case errors.Is(err, services.ErrTokenExpired):
		respondError(c, http.StatusBadRequest, msgTokenExpired)
	case errors.Is(err, services.ErrAlreadyVerified):
		respondError(c, http.StatusBadRequest, "Account già attivato")
	case errors.Is(err, services.ErrNotProvisioned):
		respondError(c, http.StatusBadRequest, "Account non abilitato all'attivazione")
	case errors.Is(err, services.ErrEmailMismatch):
		respondError(c, http.StatusBadRequest, "Email non corrispondente")
	case errors.Is(err, services.ErrCodeInvalid):
		respondError(c, http.StatusBadRequest, msgCodeInvalid)
	case errors.Is(err, services.ErrCodeExpired):
		respondError(c, http.StatusBadRequest, msgCodeExpired)
	case errors.Is(err, services.ErrCodeNotVerified):
		respondError(c, http.StatusBadRequest, "Verifica prima il codice email")
	case errors.Is(err, services.ErrPasswordTooShort):
		respondError(c, http.StatusBadRequest, "La password deve contenere almeno 8 caratteri")
	case errors.Is(err, services.ErrCurrentPassword):
		respondError(c, http.StatusBadRequest, "Password attuale non corretta")
	default:
		respondError(c, http.StatusInternalServerError, msgInternalError)
	}
}

func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

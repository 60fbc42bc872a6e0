package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SecurityConfig holds configuration for the login lockout middleware.
type SecurityConfig struct {
	// MaxLoginAttempts before lockout
	MaxLoginAttempts int
	// LockoutDuration is the initial lockout duration
	LockoutDuration time.Duration
	// MaxLockoutDuration caps the exponential backoff
	MaxLockoutDuration time.Duration
	// LockoutResetAfter is how long until failed attempts are forgotten
	LockoutResetAfter time.Duration
	// RedisKeyPrefix for storing lockout data
	RedisKeyPrefix string
}

// DefaultSecurityConfig returns sensible defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxLoginAttempts:   5,
		LockoutDuration:    30 * time.Second,
		MaxLockoutDuration: 1 * time.Hour,
		LockoutResetAfter:  15 * time.Minute,
		RedisKeyPrefix:     "auth:lockout:",
	}
}

// SecurityMiddleware tracks failed logins per IP and username and locks the
// pair out with exponential backoff. State lives in Redis; a local map
// takes over when Redis is down so the service keeps working.
type SecurityMiddleware struct {
	config      SecurityConfig
	redisClient *redis.Client
	logger      *logrus.Logger

	localLockouts map[string]*lockoutState
	localMu       sync.RWMutex
}

type lockoutState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastFailedAt   time.Time `json:"last_failed_at"`
	LockedUntil    time.Time `json:"locked_until"`
	LockoutCount   int       `json:"lockout_count"`
}

// NewSecurityMiddleware creates a new security middleware instance.
// redisClient may be nil.
func NewSecurityMiddleware(redisClient *redis.Client, logger *logrus.Logger) *SecurityMiddleware {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return &SecurityMiddleware{
		config:        DefaultSecurityConfig(),
		redisClient:   redisClient,
		logger:        logger,
		localLockouts: make(map[string]*lockoutState),
	}
}

// generateLockoutKey creates a key for an IP + username combination
func (sm *SecurityMiddleware) generateLockoutKey(ip, username string) string {
	data := fmt.Sprintf("%s:%s", ip, strings.ToLower(username))
	hash := sha256.Sum256([]byte(data))
	return sm.config.RedisKeyPrefix + hex.EncodeToString(hash[:16])
}

func (sm *SecurityMiddleware) getLockoutState(ctx context.Context, key string) *lockoutState {
	if sm.redisClient != nil {
		data, err := sm.redisClient.Get(ctx, key).Result()
		if err == nil {
			var state lockoutState
			if err := json.Unmarshal([]byte(data), &state); err == nil {
				return &state
			}
		} else if err != redis.Nil {
			sm.logger.WithError(err).Warn("Failed to get lockout state from Redis, using local fallback")
		}
	}

	sm.localMu.RLock()
	state, exists := sm.localLockouts[key]
	sm.localMu.RUnlock()

	if !exists {
		return &lockoutState{}
	}
	return state
}

func (sm *SecurityMiddleware) setLockoutState(ctx context.Context, key string, state *lockoutState) {
	sm.localMu.Lock()
	sm.localLockouts[key] = state
	sm.localMu.Unlock()

	if sm.redisClient == nil {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	ttl := sm.config.LockoutResetAfter
	if state.LockedUntil.After(time.Now()) {
		remaining := time.Until(state.LockedUntil)
		if remaining > ttl {
			ttl = remaining + time.Minute
		}
	}

	if err := sm.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		sm.logger.WithError(err).Warn("Failed to set lockout state in Redis")
	}
}

func (sm *SecurityMiddleware) clearLockoutState(ctx context.Context, key string) {
	sm.localMu.Lock()
	delete(sm.localLockouts, key)
	sm.localMu.Unlock()

	if sm.redisClient != nil {
		if err := sm.redisClient.Del(ctx, key).Err(); err != nil {
			sm.logger.WithError(err).Warn("Failed to clear lockout state from Redis")
		}
	}
}

// calculateLockoutDuration applies exponential backoff per lockout
func (sm *SecurityMiddleware) calculateLockoutDuration(lockoutCount int) time.Duration {
	if lockoutCount <= 0 {
		return sm.config.LockoutDuration
	}

	duration := sm.config.LockoutDuration * time.Duration(1<<(lockoutCount-1))
	if duration > sm.config.MaxLockoutDuration {
		duration = sm.config.MaxLockoutDuration
	}
	return duration
}

// RecordFailedLogin records a failed login attempt and returns the
// remaining attempts before lockout.
func (sm *SecurityMiddleware) RecordFailedLogin(ctx context.Context, ip, username string) (attemptsRemaining int, lockedUntil time.Time) {
	key := sm.generateLockoutKey(ip, username)
	state := sm.getLockoutState(ctx, key)

	if state.FailedAttempts > 0 && time.Since(state.LastFailedAt) > sm.config.LockoutResetAfter {
		state = &lockoutState{}
	}

	state.FailedAttempts++
	state.LastFailedAt = time.Now()

	if state.FailedAttempts >= sm.config.MaxLoginAttempts {
		state.LockoutCount++
		duration := sm.calculateLockoutDuration(state.LockoutCount)
		state.LockedUntil = time.Now().Add(duration)

		sm.logSecurityEvent("account_locked", ip, username, map[string]interface{}{
			"failed_attempts":  state.FailedAttempts,
			"lockout_count":    state.LockoutCount,
			"lockout_duration": duration.String(),
		})
	} else {
		sm.logSecurityEvent("failed_login_attempt", ip, username, map[string]interface{}{
			"failed_attempts":    state.FailedAttempts,
			"attempts_remaining": sm.config.MaxLoginAttempts - state.FailedAttempts,
		})
	}

	sm.setLockoutState(ctx, key, state)
	return sm.config.MaxLoginAttempts - state.FailedAttempts, state.LockedUntil
}

// RecordSuccessfulLogin clears failed attempts for the IP + username pair.
func (sm *SecurityMiddleware) RecordSuccessfulLogin(ctx context.Context, ip, username string) {
	sm.clearLockoutState(ctx, sm.generateLockoutKey(ip, username))
}

// IsLocked reports whether the IP + username pair is currently locked out.
func (sm *SecurityMiddleware) IsLocked(ctx context.Context, ip, username string) (bool, time.Duration) {
	state := sm.getLockoutState(ctx, sm.generateLockoutKey(ip, username))
	if state.LockedUntil.After(time.Now()) {
		return true, time.Until(state.LockedUntil)
	}
	return false, 0
}

// LoginLockoutMiddleware rejects login attempts for locked-out IP +
// username pairs before the handler runs. It peeks at the JSON body for the
// username and restores the body for the handler.
func (sm *SecurityMiddleware) LoginLockoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := extractUsernameFromRequest(c)
		if username == "" {
			c.Next()
			return
		}

		ip := c.ClientIP()
		ctx := c.Request.Context()

		locked, remaining := sm.IsLocked(ctx, ip, username)
		if locked {
			sm.logSecurityEvent("locked_login_attempt", ip, username, map[string]interface{}{
				"remaining_lockout": remaining.String(),
			})

			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "Troppi tentativi falliti, riprova più tardi",
				"retry_after": int(remaining.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()

		// Track the outcome by response status so handlers stay unaware of
		// the lockout machinery.
		switch c.Writer.Status() {
		case http.StatusOK:
			sm.RecordSuccessfulLogin(ctx, ip, username)
		case http.StatusUnauthorized:
			sm.RecordFailedLogin(ctx, ip, username)
		}
	}
}

// extractUsernameFromRequest peeks at the JSON body without consuming it
func extractUsernameFromRequest(c *gin.Context) string {
	var req struct {
		Username string `json:"username"`
	}

	bodyBytes, err := c.GetRawData()
	if err != nil || len(bodyBytes) == 0 {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return ""
	}
	return strings.ToLower(req.Username)
}

func (sm *SecurityMiddleware) logSecurityEvent(eventType, ip, username string, details map[string]interface{}) {
	fields := logrus.Fields{
		"event_type":     eventType,
		"ip_address":     ip,
		"username":       maskUsername(username),
		"security_event": true,
	}
	for k, v := range details {
		fields[k] = v
	}
	sm.logger.WithFields(fields).Info("Security event")
}

// maskUsername hides most of a username for log output
func maskUsername(username string) string {
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + strings.Repeat("*", len(username)-2)
}

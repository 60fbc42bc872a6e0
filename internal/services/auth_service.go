package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crm-auth-service/internal/models"
)

const sessionTTL = 7 * 24 * time.Hour

// RequestMeta carries the caller-identifying fields written to audit rows.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful unified login. Exactly one of
// Admin or Client is set, matching Type.
type LoginResult struct {
	Type   string
	Token  string
	Admin  *models.AdminUser
	Client *models.PortalView
}

// AuthService drives the unified login, registration, sessions and the
// password reset and email change flows.
type AuthService struct {
	admins    AdminStore
	clients   ClientStore
	codes     CodeStore
	passwords *PasswordService
	jwt       *JWTService
	equalizer *Equalizer
	mailer    Mailer
	audit     AuditPublisher
	logger    *logrus.Logger
	devMode   bool
}

// NewAuthService creates the auth orchestrator. mailer and audit may be nil;
// the corresponding side effects are skipped.
func NewAuthService(admins AdminStore, clients ClientStore, codes CodeStore, passwords *PasswordService, jwt *JWTService, equalizer *Equalizer, mailer Mailer, audit AuditPublisher, logger *logrus.Logger, devMode bool) *AuthService {
	return &AuthService{
		admins:    admins,
		clients:   clients,
		codes:     codes,
		passwords: passwords,
		jwt:       jwt,
		equalizer: equalizer,
		mailer:    mailer,
		audit:     audit,
		logger:    logger,
		devMode:   devMode,
	}
}

// NormalizeUsername applies the canonical form used for every username
// lookup: trimmed and lowercased.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Login implements the unified login: admin credentials are tried first,
// then client credentials. Failed attempts against an existing user and
// attempts against an unknown username both pad to the equalizer's floor
// with the same error, so response latency and body never reveal whether
// the username exists.
func (s *AuthService) Login(ctx context.Context, username, password string, start time.Time, meta RequestMeta) (*LoginResult, error) {
	username = NormalizeUsername(username)

	user, err := s.admins.GetUserByUsername(ctx, username)
	if err == nil {
		return s.loginAdmin(ctx, user, password, start, meta)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("admin lookup failed: %w", err)
	}

	client, err := s.clients.GetByUsername(ctx, username)
	if err == nil {
		return s.loginClient(ctx, client, password, start, meta)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}

	// Unknown username: same message and same latency floor as a wrong
	// password against an existing account.
	s.equalizer.Wait(start)
	return nil, ErrInvalidCredentials
}

func (s *AuthService) loginAdmin(ctx context.Context, user *models.AdminUser, password string, start time.Time, meta RequestMeta) (*LoginResult, error) {
	if !s.passwords.VerifyPassword(password, user.PasswordHash) {
		s.logAccess(ctx, &user.ID, "login", models.LogStatusFailed, meta, "invalid password")
		s.equalizer.Wait(start)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logAccess(ctx, &user.ID, "login", models.LogStatusFailed, meta, "account disabled")
		return nil, ErrAccountDisabled
	}

	token, err := s.jwt.IssueAdminToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	session := &models.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(sessionTTL),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.admins.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.admins.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to update last login")
	}
	now := time.Now()
	user.LastLogin = &now

	s.logAccess(ctx, &user.ID, "login", models.LogStatusSuccess, meta, "")
	s.publish(ctx, "auth.admin.login", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"ip":       meta.IP,
	})

	return &LoginResult{Type: "ADMIN", Token: token, Admin: user}, nil
}

func (s *AuthService) loginClient(ctx context.Context, client *models.ClientAccess, password string, start time.Time, meta RequestMeta) (*LoginResult, error) {
	usingTemporary := false
	switch {
	case client.TemporaryPassword != nil && *client.TemporaryPassword != "":
		// One-time momentary access: the operator-issued value is compared
		// as-is. This branch has no latency floor, a documented gap.
		usingTemporary = true
		if password != *client.TemporaryPassword {
			s.logClientActivity(ctx, &client.ID, "login_failed", models.LogStatusFailed, meta, "invalid temporary password")
			return nil, ErrInvalidCredentials
		}
	case client.PasswordHash != nil && *client.PasswordHash != "":
		if !s.passwords.VerifyPassword(password, *client.PasswordHash) {
			s.logClientActivity(ctx, &client.ID, "login_failed", models.LogStatusFailed, meta, "invalid password")
			s.equalizer.Wait(start)
			return nil, ErrInvalidCredentials
		}
	default:
		s.logClientActivity(ctx, &client.ID, "login_failed", models.LogStatusFailed, meta, "account not activated")
		return nil, ErrNotActivated
	}

	if !client.IsActive {
		s.logClientActivity(ctx, &client.ID, "login_failed", models.LogStatusFailed, meta, "account disabled")
		return nil, ErrAccountDisabled
	}
	if !usingTemporary && !client.EmailVerified {
		s.logClientActivity(ctx, &client.ID, "login_failed", models.LogStatusFailed, meta, "email not verified")
		return nil, ErrEmailNotVerified
	}

	token, err := s.jwt.IssueClientToken(client.ID, client.ContactID, client.Username, client.AccessType)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	if err := s.clients.UpdateLastLogin(ctx, client.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to update client last login")
	}

	s.logClientActivity(ctx, &client.ID, "login", models.LogStatusSuccess, meta, "")
	s.publish(ctx, "auth.client.login", map[string]interface{}{
		"client_access_id": client.ID.String(),
		"username":         client.Username,
		"ip":               meta.IP,
	})

	return &LoginResult{Type: "CLIENT", Token: token, Client: client.Portal()}, nil
}

// Register creates a new admin user and an initial session.
func (s *AuthService) Register(ctx context.Context, username, email, password, firstName, lastName string, meta RequestMeta) (*models.AdminUser, string, error) {
	username = NormalizeUsername(username)
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, "", ErrPasswordTooShort
	}

	user := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := s.admins.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, "", ErrDuplicateUser
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.jwt.IssueAdminToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	session := &models.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(sessionTTL),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.admins.CreateSession(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logAccess(ctx, &user.ID, "register", models.LogStatusSuccess, meta, "")
	s.publish(ctx, "auth.admin.registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	return user, token, nil
}

// Logout deletes the session matching the presented bearer token. Unknown
// tokens are not an error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, token string, meta RequestMeta) error {
	if err := s.admins.DeleteSessionByTokenHash(ctx, HashToken(token)); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetAdmin fetches an admin user by ID.
func (s *AuthService) GetAdmin(ctx context.Context, userID uuid.UUID) (*models.AdminUser, error) {
	user, err := s.admins.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateAdminProfile updates the mutable profile fields of an admin user.
func (s *AuthService) UpdateAdminProfile(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*models.AdminUser, error) {
	user, err := s.GetAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = firstName
	user.LastName = lastName
	if err := s.admins.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// RequestPasswordReset issues a one-hour reset token for the given email.
// It returns the token only in dev mode; in production the token travels by
// email alone and the caller always sees the same generic response, whether
// or not the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.admins.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("user lookup failed: %w", err)
	}

	token, err := s.passwords.GenerateResetToken()
	if err != nil {
		return "", err
	}
	reset := &models.PasswordResetToken{
		ID:        uuid.New(),
		Email:     user.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.admins.CreatePasswordResetToken(ctx, reset); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	// TODO: send the reset link through the mailer once the reset email
	// template exists; until then the token is only logged server-side.
	s.logger.WithFields(logrus.Fields{
		"email": maskEmail(user.Email),
	}).Info("Password reset token issued")
	if s.devMode {
		return token, nil
	}
	return "", nil
}

// ConfirmPasswordReset consumes a reset token, sets the new password and
// revokes every session of the affected user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	reset, err := s.admins.GetPasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("reset token lookup failed: %w", err)
	}
	if reset.Used {
		return ErrTokenUsed
	}
	if reset.ExpiresAt.Before(time.Now()) {
		return ErrTokenExpired
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.admins.GetUserByEmail(ctx, reset.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user lookup failed: %w", err)
	}

	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return ErrPasswordTooShort
	}
	if err := s.admins.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.admins.MarkResetTokenUsed(ctx, reset.ID); err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if err := s.admins.DeleteSessionsForUser(ctx, user.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke sessions after password reset")
	}

	s.logAccess(ctx, &user.ID, "password_reset", models.LogStatusSuccess, meta, "")
	s.publish(ctx, "auth.admin.password_reset", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return nil
}

// ChangeClientPassword verifies the client's current password and installs a
// new one.
func (s *AuthService) ChangeClientPassword(ctx context.Context, accessID uuid.UUID, current, newPassword string, meta RequestMeta) error {
	client, err := s.clients.GetByID(ctx, accessID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("client lookup failed: %w", err)
	}
	if client.PasswordHash == nil || !s.passwords.VerifyPassword(current, *client.PasswordHash) {
		s.logClientActivity(ctx, &client.ID, "password_change_failed", models.LogStatusFailed, meta, "current password incorrect")
		return ErrCurrentPassword
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return ErrPasswordTooShort
	}
	if err := s.clients.UpdatePassword(ctx, client.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logClientActivity(ctx, &client.ID, "password_changed", models.LogStatusSuccess, meta, "")
	s.publish(ctx, "auth.client.password_changed", map[string]interface{}{
		"client_access_id": client.ID.String(),
	})
	return nil
}

// SendEmailChangeCode starts an authenticated admin's email change: a fresh
// 6-digit code is stored against the new address and mailed to it.
func (s *AuthService) SendEmailChangeCode(ctx context.Context, userID uuid.UUID, newEmail string) (string, error) {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))

	user, err := s.GetAdmin(ctx, userID)
	if err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	row := &models.EmailVerificationCode{
		ID:        uuid.New(),
		Email:     newEmail,
		Code:      code,
		ExpiresAt: time.Now().Add(codeTTL),
	}
	if err := s.codes.CreateVerificationCode(ctx, row); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerificationCode(newEmail, user.FirstName, code); err != nil {
			s.logger.WithError(err).Error("Failed to send verification email")
		}
	}
	if s.devMode {
		return code, nil
	}
	return "", nil
}

// VerifyEmailChangeCode checks the code sent to the new address and, on
// success, installs the new email and marks it verified in one update.
func (s *AuthService) VerifyEmailChangeCode(ctx context.Context, userID uuid.UUID, newEmail, code string, meta RequestMeta) error {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))

	row, err := s.codes.GetLatestMatchingCode(ctx, newEmail, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("code lookup failed: %w", err)
	}
	if row.IsExpired(time.Now()) {
		return ErrCodeExpired
	}
	if err := s.codes.MarkCodeVerified(ctx, row.ID); err != nil {
		return fmt.Errorf("failed to mark code verified: %w", err)
	}
	if err := s.admins.UpdateEmail(ctx, userID, newEmail); err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}

	s.logAccess(ctx, &userID, "email_changed", models.LogStatusSuccess, meta, newEmail)
	return nil
}

func (s *AuthService) logAccess(ctx context.Context, userID *uuid.UUID, action, status string, meta RequestMeta, details string) {
	entry := &models.AccessLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Status:    status,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Details:   details,
	}
	if err := s.admins.CreateAccessLog(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to write access log")
	}
}

func (s *AuthService) logClientActivity(ctx context.Context, accessID *uuid.UUID, action, status string, meta RequestMeta, details string) {
	entry := &models.ClientActivityLog{
		ID:             uuid.New(),
		ClientAccessID: accessID,
		Action:         action,
		Status:         status,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
		Details:        details,
	}
	if err := s.clients.CreateActivityLog(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to write client activity log")
	}
}

func (s *AuthService) publish(ctx context.Context, action string, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(ctx, action, data)
}

// maskEmail hides most of the local part for log output.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// AdminStore is the persistence surface the auth service needs for admin
// users, sessions, reset tokens and audit rows. Defined here so the service
// layer does not import the repository package.
type AdminStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	CreateUser(ctx context.Context, user *models.AdminUser) error
	UpdateUser(ctx context.Context, user *models.AdminUser) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error

	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteSessionsForUser(ctx context.Context, userID uuid.UUID) error

	CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error
	GetPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error

	CreateAccessLog(ctx context.Context, entry *models.AccessLog) error
}

// AuditPublisher pushes audit events to the event stream. Implementations
// must be safe to call on every request path.
type AuditPublisher interface {
	Publish(ctx context.Context, action string, data map[string]interface{})
}

// Mailer sends the transactional mails of the auth flows.
type Mailer interface {
	SendVerificationCode(to, name, code string) error
	SendActivationCode(to, name, code string) error
}

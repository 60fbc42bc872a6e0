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
	"crm-auth-service/pkg/otp"
)

const (
	// codeTTL is the lifetime of an email verification code (token flow).
	codeTTL = 10 * time.Minute
	// manualCodeTTL is the lifetime of a manually issued activation code.
	manualCodeTTL = 15 * time.Minute
)

func generateCode() (string, error) {
	return otp.GenerateCode()
}

// ActivationInfo is the non-secret summary returned by the read-only
// verification steps of both activation flows.
type ActivationInfo struct {
	Username    string `json:"username"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	AccessType  string `json:"access_type"`
}

// ActivationResult is the outcome of a completed activation: a client
// session token plus the portal view of the freshly activated account.
type ActivationResult struct {
	Token  string             `json:"token"`
	Client *models.PortalView `json:"client_access"`
}

// ActivationService drives the two client self-activation flows. The token
// flow follows an emailed link; the manual flow starts from a username and a
// support-issued code. Both end with the password hash installed and the
// activation token cleared in a single compare-and-swap update, so of two
// racing completion attempts only one succeeds.
type ActivationService struct {
	clients   ClientStore
	codes     CodeStore
	passwords *PasswordService
	jwt       *JWTService
	mailer    Mailer
	audit     AuditPublisher
	logger    *logrus.Logger
	devMode   bool
}

// NewActivationService creates the activation orchestrator. mailer and audit
// may be nil.
func NewActivationService(clients ClientStore, codes CodeStore, passwords *PasswordService, jwt *JWTService, mailer Mailer, audit AuditPublisher, logger *logrus.Logger, devMode bool) *ActivationService {
	return &ActivationService{
		clients:   clients,
		codes:     codes,
		passwords: passwords,
		jwt:       jwt,
		mailer:    mailer,
		audit:     audit,
		logger:    logger,
		devMode:   devMode,
	}
}

// VerifyToken checks an activation link token and returns the account
// summary. Read-only: calling it any number of times mutates nothing.
func (s *ActivationService) VerifyToken(ctx context.Context, token string) (*ActivationInfo, error) {
	client, err := s.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if client.ActivationExpires != nil && client.ActivationExpires.Before(time.Now()) {
		return nil, ErrTokenExpired
	}
	if client.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	return s.info(client), nil
}

// SendVerificationCode generates a 6-digit code for the token flow, stores
// it against the contact's email and mails it. The submitted email must
// match the contact's email, compared case-insensitively. The code is
// returned only in dev mode.
func (s *ActivationService) SendVerificationCode(ctx context.Context, token, email string) (string, error) {
	client, err := s.getByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if client.Contact == nil || !strings.EqualFold(strings.TrimSpace(email), client.Contact.Email) {
		return "", ErrEmailMismatch
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	row := &models.EmailVerificationCode{
		ID:        uuid.New(),
		Email:     strings.ToLower(client.Contact.Email),
		Code:      code,
		ExpiresAt: time.Now().Add(codeTTL),
	}
	if err := s.codes.CreateVerificationCode(ctx, row); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerificationCode(client.Contact.Email, client.Contact.FullName(), code); err != nil {
			s.logger.WithError(err).Error("Failed to send verification email")
		}
	}
	if s.devMode {
		return code, nil
	}
	return "", nil
}

// VerifyCode checks the most recent unverified code for the email and marks
// it verified. The check runs purely against the verification code table;
// no client row is touched at this step.
func (s *ActivationService) VerifyCode(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	row, err := s.codes.GetLatestMatchingCode(ctx, email, code)
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
	return nil
}

// CompleteActivation finishes the token flow. It requires a previously
// verified code for the email, re-checks the token and email match, then
// installs the password hash and clears the token in one update.
func (s *ActivationService) CompleteActivation(ctx context.Context, token, email, password string, meta RequestMeta) (*ActivationResult, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.codes.GetLatestVerifiedCode(ctx, email); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrCodeNotVerified
		}
		return nil, fmt.Errorf("code lookup failed: %w", err)
	}

	client, err := s.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if client.Contact == nil || !strings.EqualFold(email, client.Contact.Email) {
		return nil, ErrEmailMismatch
	}

	result, err := s.finishActivation(ctx, client, password)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, &client.ID, "account_activated", meta)
	s.publishActivated(ctx, client, "token")
	return result, nil
}

// VerifyUsername is the read-only first step of the manual flow.
func (s *ActivationService) VerifyUsername(ctx context.Context, username string) (*ActivationInfo, error) {
	client, err := s.getByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if client.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if client.ActivationToken == nil || *client.ActivationToken == "" {
		return nil, ErrNotProvisioned
	}
	return s.info(client), nil
}

// SendActivationCode issues a fresh manual-flow code. The code and its
// expiry are stored as a JSON blob in the activation token column itself;
// a resend overwrites the previous blob, so only the latest code is valid.
func (s *ActivationService) SendActivationCode(ctx context.Context, username string) (string, error) {
	client, err := s.getByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if _, ok := models.NextActivation(s.manualState(client), models.EventSendCode); !ok {
		return "", ErrAlreadyVerified
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	blob, err := models.EncodeActivationToken(code, time.Now().Add(manualCodeTTL))
	if err != nil {
		return "", fmt.Errorf("failed to encode activation code: %w", err)
	}
	if err := s.clients.SetActivationToken(ctx, client.ID, blob); err != nil {
		return "", fmt.Errorf("failed to store activation code: %w", err)
	}

	if s.mailer != nil && client.Contact != nil {
		if err := s.mailer.SendActivationCode(client.Contact.Email, client.Contact.FullName(), code); err != nil {
			s.logger.WithError(err).Error("Failed to send activation email")
		}
	}
	if s.devMode {
		return code, nil
	}
	return "", nil
}

// VerifyActivationCode checks a manual-flow code without consuming it. Only
// the expiry embedded in the stored blob is consulted here; the legacy
// expiry column is honored by CompleteManualActivation alone.
func (s *ActivationService) VerifyActivationCode(ctx context.Context, username, code string) error {
	client, err := s.getByUsername(ctx, username)
	if err != nil {
		return err
	}
	if _, ok := models.NextActivation(s.manualState(client), models.EventVerifyCode); !ok {
		return ErrAlreadyVerified
	}
	if client.ActivationToken == nil || *client.ActivationToken == "" {
		return ErrNotProvisioned
	}

	stored := models.ParseActivationToken(*client.ActivationToken)
	if !otp.Matches(code, stored.Code) {
		return ErrCodeInvalid
	}
	if stored.IsExpired(time.Now()) {
		return ErrCodeExpired
	}
	return nil
}

// CompleteManualActivation finishes the manual flow: it re-validates the
// code exactly as VerifyActivationCode does, additionally falling back to
// the legacy expiry column for bare-code rows, then activates the account.
func (s *ActivationService) CompleteManualActivation(ctx context.Context, username, code, password string, meta RequestMeta) (*ActivationResult, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	client, err := s.getByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if _, ok := models.NextActivation(s.manualState(client), models.EventComplete); !ok {
		return nil, ErrAlreadyVerified
	}
	if client.ActivationToken == nil || *client.ActivationToken == "" {
		return nil, ErrNotProvisioned
	}

	stored := models.ParseActivationToken(*client.ActivationToken)
	if !otp.Matches(code, stored.Code) {
		return nil, ErrCodeInvalid
	}
	now := time.Now()
	if stored.IsExpired(now) {
		return nil, ErrCodeExpired
	}
	if !stored.Structured && client.ActivationExpires != nil && client.ActivationExpires.Before(now) {
		return nil, ErrCodeExpired
	}

	result, err := s.finishActivation(ctx, client, password)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, &client.ID, "account_activated_manual", meta)
	s.publishActivated(ctx, client, "manual")
	return result, nil
}

// finishActivation hashes the password and performs the compare-and-swap
// update that consumes the activation token. A false swap means another
// request activated the account first; callers surface that as an unknown
// token.
func (s *ActivationService) finishActivation(ctx context.Context, client *models.ClientAccess, password string) (*ActivationResult, error) {
	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, ErrPasswordTooShort
	}

	swapped, err := s.clients.CompleteActivation(ctx, client.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to complete activation: %w", err)
	}
	if !swapped {
		return nil, ErrTokenNotFound
	}
	client.PasswordHash = &hash
	client.EmailVerified = true
	client.ActivationToken = nil
	client.ActivationExpires = nil

	token, err := s.jwt.IssueClientToken(client.ID, client.ContactID, client.Username, client.AccessType)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &ActivationResult{Token: token, Client: client.Portal()}, nil
}

// manualState maps a client row onto the explicit activation state machine.
func (s *ActivationService) manualState(client *models.ClientAccess) models.ActivationState {
	codeSent := false
	if client.ActivationToken != nil && *client.ActivationToken != "" {
		codeSent = true
	}
	if client.EmailVerified {
		return models.StateActivated
	}
	return models.DeriveActivationState(client, codeSent, false)
}

func (s *ActivationService) getByToken(ctx context.Context, token string) (*models.ClientAccess, error) {
	client, err := s.clients.GetByActivationToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	return client, nil
}

func (s *ActivationService) getByUsername(ctx context.Context, username string) (*models.ClientAccess, error) {
	client, err := s.clients.GetByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}
	return client, nil
}

func (s *ActivationService) info(client *models.ClientAccess) *ActivationInfo {
	info := &ActivationInfo{
		Username:   client.Username,
		AccessType: client.AccessType,
	}
	if client.Contact != nil {
		info.ContactName = client.Contact.FullName()
		info.Email = client.Contact.Email
	}
	return info
}

func (s *ActivationService) logActivity(ctx context.Context, accessID *uuid.UUID, action string, meta RequestMeta) {
	entry := &models.ClientActivityLog{
		ID:             uuid.New(),
		ClientAccessID: accessID,
		Action:         action,
		Status:         models.LogStatusSuccess,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
	}
	if err := s.clients.CreateActivityLog(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to write client activity log")
	}
}

func (s *ActivationService) publishActivated(ctx context.Context, client *models.ClientAccess, flow string) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(ctx, "auth.client.activated", map[string]interface{}{
		"client_access_id": client.ID.String(),
		"username":         client.Username,
		"flow":             flow,
	})
}

// ClientStore is the persistence surface for client portal accounts.
type ClientStore interface {
	GetByUsername(ctx context.Context, username string) (*models.ClientAccess, error)
	GetByActivationToken(ctx context.Context, token string) (*models.ClientAccess, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ClientAccess, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	SetActivationToken(ctx context.Context, id uuid.UUID, token string) error
	// CompleteActivation installs the password hash, sets email_verified and
	// clears the activation token, guarded by activation_token IS NOT NULL.
	// It reports whether the row was actually updated.
	CompleteActivation(ctx context.Context, id uuid.UUID, passwordHash string) (bool, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CreateActivityLog(ctx context.Context, entry *models.ClientActivityLog) error
}

// CodeStore is the persistence surface for email verification codes. Rows
// are append-only; nothing here deletes.
type CodeStore interface {
	CreateVerificationCode(ctx context.Context, row *models.EmailVerificationCode) error
	// GetLatestMatchingCode returns the most recent unverified row matching
	// email and code, or models.ErrNotFound.
	GetLatestMatchingCode(ctx context.Context, email, code string) (*models.EmailVerificationCode, error)
	// GetLatestVerifiedCode returns the most recently verified row for the
	// email, by verified_at.
	GetLatestVerifiedCode(ctx context.Context, email string) (*models.EmailVerificationCode, error)
	MarkCodeVerified(ctx context.Context, id uuid.UUID) error
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crm-auth-service/internal/models"
)

// AuthRepository persists admin users, sessions, reset tokens and access
// logs on Postgres.
type AuthRepository struct {
	db *sql.DB
}

func NewAuthRepository(db *sql.DB) *AuthRepository {
	return &AuthRepository{
		db: db,
	}
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Admin users

// CreateUser creates a new admin user
func (r *AuthRepository) CreateUser(ctx context.Context, user *models.AdminUser) error {
	query := `
		INSERT INTO admin_users (id, username, email, password_hash, first_name, last_name, role, is_active, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Role, user.IsActive, user.EmailVerified,
		user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicate
	}
	return err
}

const adminUserColumns = `id, username, email, password_hash, first_name, last_name, role, is_active, email_verified, last_login, created_at, updated_at`

func (r *AuthRepository) scanUser(row *sql.Row) (*models.AdminUser, error) {
	user := &models.AdminUser{}
	var lastLogin sql.NullTime

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Role, &user.IsActive,
		&user.EmailVerified, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return user, nil
}

// GetUserByUsername retrieves an admin user by username
func (r *AuthRepository) GetUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE username = $1 LIMIT 1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

// GetUserByEmail retrieves an admin user by email
func (r *AuthRepository) GetUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE email = $1 LIMIT 1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves an admin user by ID
func (r *AuthRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// UpdateUser updates the mutable profile fields of an admin user
func (r *AuthRepository) UpdateUser(ctx context.Context, user *models.AdminUser) error {
	query := `
		UPDATE admin_users
		SET first_name = $2, last_name = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, user.ID, user.FirstName, user.LastName)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateLastLogin sets the last login timestamp to now
func (r *AuthRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE admin_users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// UpdatePassword replaces the stored password hash
func (r *AuthRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE admin_users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateEmail installs a new email address and marks it verified in the
// same statement.
func (r *AuthRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	query := `UPDATE admin_users SET email = $2, email_verified = TRUE, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, email)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return err
	}
	return requireRow(result)
}

// Sessions

// CreateSession stores a session row keyed by token hash
func (r *AuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, session.TokenHash,
		session.ExpiresAt, session.IPAddress, session.UserAgent)
	return err
}

// GetSessionByTokenHash retrieves an unexpired session by token hash
func (r *AuthRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, ip_address, user_agent, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.TokenHash, &session.ExpiresAt,
		&session.IPAddress, &session.UserAgent, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// DeleteSessionByTokenHash removes a single session (logout)
func (r *AuthRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteSessionsForUser removes every session of a user (password reset)
func (r *AuthRepository) DeleteSessionsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// Password reset tokens

// CreatePasswordResetToken stores a one-time reset token
func (r *AuthRepository) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, email, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
	`
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query, token.ID, token.Email, token.Token, token.ExpiresAt)
	return err
}

// GetPasswordResetToken retrieves a reset token by its value
func (r *AuthRepository) GetPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, email, token, expires_at, used, used_at, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`
	reset := &models.PasswordResetToken{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&reset.ID, &reset.Email, &reset.Token, &reset.ExpiresAt, &reset.Used, &usedAt, &reset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		reset.UsedAt = &usedAt.Time
	}
	return reset, nil
}

// MarkResetTokenUsed consumes a reset token
func (r *AuthRepository) MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE password_reset_tokens SET used = TRUE, used_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Access logs

// CreateAccessLog appends an audit row. Rows are never updated or deleted.
func (r *AuthRepository) CreateAccessLog(ctx context.Context, entry *models.AccessLog) error {
	query := `
		INSERT INTO access_logs (id, user_id, action, status, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Action, entry.Status,
		entry.IPAddress, entry.UserAgent, entry.Details)
	return err
}

// requireRow converts a zero-row update or delete into models.ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

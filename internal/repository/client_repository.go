package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"crm-auth-service/internal/models"
)

// ClientRepository persists client portal accounts and email verification
// codes on Postgres. Client rows are read together with their contact and,
// when linked, a slim quote projection.
type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{
		db: db,
	}
}

const clientAccessQuery = `
	SELECT ca.id, ca.contact_id, ca.linked_quote_id, ca.username, ca.password_hash,
	       ca.temporary_password, ca.email_verified, ca.is_active, ca.activation_token,
	       ca.activation_expires, ca.access_type, ca.last_login, ca.created_at, ca.updated_at,
	       c.id, c.first_name, c.last_name, c.email, c.phone, c.company,
	       q.id, q.number, q.status, q.total
	FROM client_access ca
	JOIN contacts c ON c.id = ca.contact_id
	LEFT JOIN quotes q ON q.id = ca.linked_quote_id
`

func (r *ClientRepository) scanClient(row *sql.Row) (*models.ClientAccess, error) {
	client := &models.ClientAccess{Contact: &models.Contact{}}
	var (
		linkedQuoteID     sql.NullString
		passwordHash      sql.NullString
		temporaryPassword sql.NullString
		activationToken   sql.NullString
		activationExpires sql.NullTime
		lastLogin         sql.NullTime
		phone             sql.NullString
		company           sql.NullString
		quoteID           sql.NullString
		quoteNumber       sql.NullString
		quoteStatus       sql.NullString
		quoteTotal        sql.NullFloat64
	)

	err := row.Scan(
		&client.ID, &client.ContactID, &linkedQuoteID, &client.Username, &passwordHash,
		&temporaryPassword, &client.EmailVerified, &client.IsActive, &activationToken,
		&activationExpires, &client.AccessType, &lastLogin, &client.CreatedAt, &client.UpdatedAt,
		&client.Contact.ID, &client.Contact.FirstName, &client.Contact.LastName,
		&client.Contact.Email, &phone, &company,
		&quoteID, &quoteNumber, &quoteStatus, &quoteTotal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	if linkedQuoteID.Valid {
		id, err := uuid.Parse(linkedQuoteID.String)
		if err == nil {
			client.LinkedQuoteID = &id
		}
	}
	if passwordHash.Valid {
		client.PasswordHash = &passwordHash.String
	}
	if temporaryPassword.Valid {
		client.TemporaryPassword = &temporaryPassword.String
	}
	if activationToken.Valid {
		client.ActivationToken = &activationToken.String
	}
	if activationExpires.Valid {
		client.ActivationExpires = &activationExpires.Time
	}
	if lastLogin.Valid {
		client.LastLogin = &lastLogin.Time
	}
	if phone.Valid {
		client.Contact.Phone = &phone.String
	}
	if company.Valid {
		client.Contact.Company = &company.String
	}
	if quoteID.Valid {
		id, err := uuid.Parse(quoteID.String)
		if err == nil {
			client.Quote = &models.QuoteSummary{
				ID:     id,
				Number: quoteNumber.String,
				Status: quoteStatus.String,
				Total:  quoteTotal.Float64,
			}
		}
	}
	return client, nil
}

// GetByUsername retrieves a client account by username
func (r *ClientRepository) GetByUsername(ctx context.Context, username string) (*models.ClientAccess, error) {
	query := clientAccessQuery + ` WHERE ca.username = $1 LIMIT 1`
	return r.scanClient(r.db.QueryRowContext(ctx, query, username))
}

// GetByActivationToken retrieves a client account by its activation token
func (r *ClientRepository) GetByActivationToken(ctx context.Context, token string) (*models.ClientAccess, error) {
	query := clientAccessQuery + ` WHERE ca.activation_token = $1 LIMIT 1`
	return r.scanClient(r.db.QueryRowContext(ctx, query, token))
}

// GetByID retrieves a client account by ID
func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClientAccess, error) {
	query := clientAccessQuery + ` WHERE ca.id = $1`
	return r.scanClient(r.db.QueryRowContext(ctx, query, id))
}

// UpdateLastLogin sets the last login timestamp to now
func (r *ClientRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE client_access SET last_login = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// SetActivationToken overwrites the activation token column. The manual
// activation flow stores its code blob here; a resend replaces the previous
// one, last write wins.
func (r *ClientRepository) SetActivationToken(ctx context.Context, id uuid.UUID, token string) error {
	query := `UPDATE client_access SET activation_token = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// CompleteActivation installs the password hash, marks the email verified
// and clears the activation token. The activation_token IS NOT NULL guard
// makes the swap exclusive: of two racing completions only the first
// updates a row, the second sees false.
func (r *ClientRepository) CompleteActivation(ctx context.Context, id uuid.UUID, passwordHash string) (bool, error) {
	query := `
		UPDATE client_access
		SET password_hash = $2, email_verified = TRUE, temporary_password = NULL,
		    activation_token = NULL, activation_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND activation_token IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdatePassword replaces the stored password hash
func (r *ClientRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE client_access SET password_hash = $2, temporary_password = NULL, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// CreateActivityLog appends an audit row for client portal activity
func (r *ClientRepository) CreateActivityLog(ctx context.Context, entry *models.ClientActivityLog) error {
	query := `
		INSERT INTO client_activity_logs (id, client_access_id, action, status, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.ClientAccessID, entry.Action,
		entry.Status, entry.IPAddress, entry.UserAgent, entry.Details)
	return err
}

// Email verification codes

// CreateVerificationCode appends a fresh code row. Rows are never deleted.
func (r *ClientRepository) CreateVerificationCode(ctx context.Context, row *models.EmailVerificationCode) error {
	query := `
		INSERT INTO email_verification_codes (id, email, code, expires_at, verified, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
	`
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query, row.ID, row.Email, row.Code, row.ExpiresAt)
	return err
}

func (r *ClientRepository) scanCode(row *sql.Row) (*models.EmailVerificationCode, error) {
	code := &models.EmailVerificationCode{}
	var verifiedAt sql.NullTime
	err := row.Scan(&code.ID, &code.Email, &code.Code, &code.ExpiresAt, &code.Verified, &verifiedAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if verifiedAt.Valid {
		code.VerifiedAt = &verifiedAt.Time
	}
	return code, nil
}

// GetLatestMatchingCode returns the most recent unverified row matching the
// email and code. Expiry is checked by the caller so the boundary rule
// lives in one place.
func (r *ClientRepository) GetLatestMatchingCode(ctx context.Context, email, code string) (*models.EmailVerificationCode, error) {
	query := `
		SELECT id, email, code, expires_at, verified, verified_at, created_at
		FROM email_verification_codes
		WHERE email = $1 AND code = $2 AND verified = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanCode(r.db.QueryRowContext(ctx, query, email, code))
}

// GetLatestVerifiedCode returns the most recently verified row for the email
func (r *ClientRepository) GetLatestVerifiedCode(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	query := `
		SELECT id, email, code, expires_at, verified, verified_at, created_at
		FROM email_verification_codes
		WHERE email = $1 AND verified = TRUE
		ORDER BY verified_at DESC
		LIMIT 1
	`
	return r.scanCode(r.db.QueryRowContext(ctx, query, email))
}

// MarkCodeVerified marks a code row as verified
func (r *ClientRepository) MarkCodeVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE email_verification_codes SET verified = TRUE, verified_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

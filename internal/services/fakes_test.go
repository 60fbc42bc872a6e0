package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"crm-auth-service/internal/models"
)

// In-memory stores backing the service tests.

type fakeAdminStore struct {
	users      map[string]*models.AdminUser // keyed by username
	sessions   map[string]*models.Session   // keyed by token hash
	resets     map[string]*models.PasswordResetToken
	accessLogs []*models.AccessLog
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		users:    make(map[string]*models.AdminUser),
		sessions: make(map[string]*models.Session),
		resets:   make(map[string]*models.PasswordResetToken),
	}
}

func (f *fakeAdminStore) GetUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeAdminStore) GetUserByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeAdminStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeAdminStore) CreateUser(ctx context.Context, user *models.AdminUser) error {
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return models.ErrDuplicate
		}
	}
	f.users[user.Username] = user
	return nil
}

func (f *fakeAdminStore) UpdateUser(ctx context.Context, user *models.AdminUser) error {
	f.users[user.Username] = user
	return nil
}

func (f *fakeAdminStore) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	user, err := f.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	user.LastLogin = &now
	return nil
}

func (f *fakeAdminStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := f.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeAdminStore) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	user, err := f.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	user.Email = email
	user.EmailVerified = true
	return nil
}

func (f *fakeAdminStore) CreateSession(ctx context.Context, session *models.Session) error {
	f.sessions[session.TokenHash] = session
	return nil
}

func (f *fakeAdminStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session, ok := f.sessions[tokenHash]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, models.ErrNotFound
	}
	return session, nil
}

func (f *fakeAdminStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	if _, ok := f.sessions[tokenHash]; !ok {
		return models.ErrNotFound
	}
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeAdminStore) DeleteSessionsForUser(ctx context.Context, userID uuid.UUID) error {
	for hash, session := range f.sessions {
		if session.UserID == userID {
			delete(f.sessions, hash)
		}
	}
	return nil
}

func (f *fakeAdminStore) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	f.resets[token.Token] = token
	return nil
}

func (f *fakeAdminStore) GetPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if reset, ok := f.resets[token]; ok {
		return reset, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeAdminStore) MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	for _, reset := range f.resets {
		if reset.ID == id {
			now := time.Now()
			reset.Used = true
			reset.UsedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeAdminStore) CreateAccessLog(ctx context.Context, entry *models.AccessLog) error {
	f.accessLogs = append(f.accessLogs, entry)
	return nil
}

func (f *fakeAdminStore) lastAccessLog() *models.AccessLog {
	if len(f.accessLogs) == 0 {
		return nil
	}
	return f.accessLogs[len(f.accessLogs)-1]
}

type fakeClientStore struct {
	clients map[string]*models.ClientAccess // keyed by username
	codes   []*models.EmailVerificationCode
	logs    []*models.ClientActivityLog
}

func newFakeClientStore() *fakeClientStore {
	return &fakeClientStore{clients: make(map[string]*models.ClientAccess)}
}

func (f *fakeClientStore) GetByUsername(ctx context.Context, username string) (*models.ClientAccess, error) {
	if client, ok := f.clients[username]; ok {
		return client, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeClientStore) GetByActivationToken(ctx context.Context, token string) (*models.ClientAccess, error) {
	for _, client := range f.clients {
		if client.ActivationToken != nil && *client.ActivationToken == token {
			return client, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeClientStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ClientAccess, error) {
	for _, client := range f.clients {
		if client.ID == id {
			return client, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeClientStore) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	client, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	client.LastLogin = &now
	return nil
}

func (f *fakeClientStore) SetActivationToken(ctx context.Context, id uuid.UUID, token string) error {
	client, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	client.ActivationToken = &token
	return nil
}

func (f *fakeClientStore) CompleteActivation(ctx context.Context, id uuid.UUID, passwordHash string) (bool, error) {
	client, err := f.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if client.ActivationToken == nil {
		return false, nil
	}
	client.PasswordHash = &passwordHash
	client.EmailVerified = true
	client.TemporaryPassword = nil
	client.ActivationToken = nil
	client.ActivationExpires = nil
	return true, nil
}

func (f *fakeClientStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	client, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	client.PasswordHash = &passwordHash
	client.TemporaryPassword = nil
	return nil
}

func (f *fakeClientStore) CreateActivityLog(ctx context.Context, entry *models.ClientActivityLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeClientStore) lastActivityLog() *models.ClientActivityLog {
	if len(f.logs) == 0 {
		return nil
	}
	return f.logs[len(f.logs)-1]
}

func (f *fakeClientStore) CreateVerificationCode(ctx context.Context, row *models.EmailVerificationCode) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	f.codes = append(f.codes, row)
	return nil
}

func (f *fakeClientStore) GetLatestMatchingCode(ctx context.Context, email, code string) (*models.EmailVerificationCode, error) {
	var matches []*models.EmailVerificationCode
	for _, row := range f.codes {
		if row.Email == email && row.Code == code && !row.Verified {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

func (f *fakeClientStore) GetLatestVerifiedCode(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	var matches []*models.EmailVerificationCode
	for _, row := range f.codes {
		if row.Email == email && row.Verified {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].VerifiedAt != nil && matches[j].VerifiedAt != nil && matches[i].VerifiedAt.After(*matches[j].VerifiedAt)
	})
	return matches[0], nil
}

func (f *fakeClientStore) MarkCodeVerified(ctx context.Context, id uuid.UUID) error {
	for _, row := range f.codes {
		if row.ID == id {
			now := time.Now()
			row.Verified = true
			row.VerifiedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

type sentMail struct {
	to   string
	name string
	code string
	kind string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) SendVerificationCode(to, name, code string) error {
	f.sent = append(f.sent, sentMail{to: to, name: name, code: code, kind: "verification"})
	return nil
}

func (f *fakeMailer) SendActivationCode(to, name, code string) error {
	f.sent = append(f.sent, sentMail{to: to, name: name, code: code, kind: "activation"})
	return nil
}

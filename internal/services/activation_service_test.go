package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"crm-auth-service/internal/models"
)

type activationFixture struct {
	svc     *ActivationService
	clients *fakeClientStore
	mailer  *fakeMailer
	jwt     *JWTService
}

func newActivationFixture(t *testing.T) *activationFixture {
	t.Helper()

	clients := newFakeClientStore()
	mailer := &fakeMailer{}
	jwtSvc, err := NewJWTService("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	svc := NewActivationService(clients, clients, NewPasswordService(), jwtSvc,
		mailer, nil, testLogger(), true)
	return &activationFixture{svc: svc, clients: clients, mailer: mailer, jwt: jwtSvc}
}

// addPending seeds an account waiting for token-flow activation.
func (fx *activationFixture) addPending(t *testing.T, username, token string) *models.ClientAccess {
	t.Helper()
	client := &models.ClientAccess{
		ID:              uuid.New(),
		ContactID:       uuid.New(),
		Username:        username,
		ActivationToken: &token,
		IsActive:        true,
		AccessType:      models.AccessTypeQuoteOnly,
		Contact: &models.Contact{
			ID:        uuid.New(),
			FirstName: "Anna",
			LastName:  "Rossi",
			Email:     "anna@example.com",
		},
	}
	fx.clients.clients[username] = client
	return client
}

func TestVerifyToken(t *testing.T) {
	fx := newActivationFixture(t)
	fx.addPending(t, "rossi.srl", "tok-1")

	info, err := fx.svc.VerifyToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if info.Username != "rossi.srl" || info.Email != "anna@example.com" || info.ContactName != "Anna Rossi" {
		t.Errorf("unexpected info: %+v", info)
	}

	// Read-only step: repeating it yields the same answer.
	if _, err := fx.svc.VerifyToken(context.Background(), "tok-1"); err != nil {
		t.Errorf("second VerifyToken returned %v", err)
	}

	if _, err := fx.svc.VerifyToken(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token err = %v, want ErrTokenNotFound", err)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")
	past := time.Now().Add(-time.Minute)
	client.ActivationExpires = &past

	if _, err := fx.svc.VerifyToken(context.Background(), "tok-1"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyTokenAlreadyVerified(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")
	client.EmailVerified = true

	if _, err := fx.svc.VerifyToken(context.Background(), "tok-1"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("err = %v, want ErrAlreadyVerified", err)
	}
}

func TestSendVerificationCode(t *testing.T) {
	fx := newActivationFixture(t)
	fx.addPending(t, "rossi.srl", "tok-1")

	if _, err := fx.svc.SendVerificationCode(context.Background(), "tok-1", "other@example.com"); !errors.Is(err, ErrEmailMismatch) {
		t.Fatalf("mismatched email err = %v, want ErrEmailMismatch", err)
	}

	// Case differences in the submitted email are accepted.
	code, err := fx.svc.SendVerificationCode(context.Background(), "tok-1", " Anna@Example.COM ")
	if err != nil {
		t.Fatalf("SendVerificationCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("dev mode should return the 6-digit code, got %q", code)
	}
	if len(fx.mailer.sent) != 1 || fx.mailer.sent[0].kind != "verification" || fx.mailer.sent[0].code != code {
		t.Errorf("unexpected mail: %+v", fx.mailer.sent)
	}
	if len(fx.clients.codes) != 1 || fx.clients.codes[0].Email != "anna@example.com" {
		t.Errorf("code row not stored against the contact email: %+v", fx.clients.codes)
	}
}

func TestVerifyCode(t *testing.T) {
	fx := newActivationFixture(t)
	fx.addPending(t, "rossi.srl", "tok-1")

	code, err := fx.svc.SendVerificationCode(context.Background(), "tok-1", "anna@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.VerifyCode(context.Background(), "anna@example.com", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("wrong code err = %v, want ErrCodeInvalid", err)
	}

	if err := fx.svc.VerifyCode(context.Background(), "Anna@Example.com", code); err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if !fx.clients.codes[0].Verified {
		t.Error("code row should be marked verified")
	}

	// A verified code no longer matches as unverified.
	if err := fx.svc.VerifyCode(context.Background(), "anna@example.com", code); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("reused code err = %v, want ErrCodeInvalid", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	fx := newActivationFixture(t)

	row := &models.EmailVerificationCode{
		ID:        uuid.New(),
		Email:     "anna@example.com",
		Code:      "123456",
		ExpiresAt: time.Now().Add(-time.Second),
	}
	if err := fx.clients.CreateVerificationCode(context.Background(), row); err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.VerifyCode(context.Background(), "anna@example.com", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
}

func TestCompleteActivation(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")

	// Completion before the code is verified is rejected.
	if _, err := fx.svc.CompleteActivation(context.Background(), "tok-1", "anna@example.com", "brand-new-pass", testMeta()); !errors.Is(err, ErrCodeNotVerified) {
		t.Fatalf("unverified err = %v, want ErrCodeNotVerified", err)
	}

	code, err := fx.svc.SendVerificationCode(context.Background(), "tok-1", "anna@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.VerifyCode(context.Background(), "anna@example.com", code); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.CompleteActivation(context.Background(), "tok-1", "anna@example.com", "short", testMeta()); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password err = %v, want ErrPasswordTooShort", err)
	}

	result, err := fx.svc.CompleteActivation(context.Background(), "tok-1", "anna@example.com", "brand-new-pass", testMeta())
	if err != nil {
		t.Fatalf("CompleteActivation returned error: %v", err)
	}
	if result.Token == "" {
		t.Error("expected a client session token")
	}
	if result.Client == nil || result.Client.Username != "rossi.srl" {
		t.Errorf("unexpected portal view: %+v", result.Client)
	}
	if claims, err := fx.jwt.ParseClientToken(result.Token); err != nil || claims.ClientAccessID != client.ID {
		t.Errorf("token should carry the client claims: claims=%+v err=%v", claims, err)
	}
	if client.ActivationToken != nil || client.PasswordHash == nil || !client.EmailVerified {
		t.Errorf("row not activated: %+v", client)
	}
	if log := fx.clients.lastActivityLog(); log == nil || log.Action != "account_activated" {
		t.Errorf("expected account_activated log, got %+v", log)
	}

	// The token was consumed; a second attempt finds nothing.
	if _, err := fx.svc.CompleteActivation(context.Background(), "tok-1", "anna@example.com", "brand-new-pass", testMeta()); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("second completion err = %v, want ErrTokenNotFound", err)
	}
}

func TestVerifyUsername(t *testing.T) {
	fx := newActivationFixture(t)
	fx.addPending(t, "rossi.srl", "tok-1")

	info, err := fx.svc.VerifyUsername(context.Background(), " Rossi.SRL ")
	if err != nil {
		t.Fatalf("VerifyUsername returned error: %v", err)
	}
	if info.Username != "rossi.srl" {
		t.Errorf("username = %q", info.Username)
	}

	if _, err := fx.svc.VerifyUsername(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown username err = %v, want ErrUserNotFound", err)
	}

	bare := fx.addPending(t, "bare.srl", "tok-2")
	bare.ActivationToken = nil
	if _, err := fx.svc.VerifyUsername(context.Background(), "bare.srl"); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("unprovisioned err = %v, want ErrNotProvisioned", err)
	}

	done := fx.addPending(t, "done.srl", "tok-3")
	done.EmailVerified = true
	if _, err := fx.svc.VerifyUsername(context.Background(), "done.srl"); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("verified account err = %v, want ErrAlreadyVerified", err)
	}
}

func TestSendActivationCode(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")

	code, err := fx.svc.SendActivationCode(context.Background(), "rossi.srl")
	if err != nil {
		t.Fatalf("SendActivationCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("dev mode should return the 6-digit code, got %q", code)
	}
	if len(fx.mailer.sent) != 1 || fx.mailer.sent[0].kind != "activation" {
		t.Errorf("unexpected mail: %+v", fx.mailer.sent)
	}

	// The code lives in the token column as a structured blob.
	if client.ActivationToken == nil {
		t.Fatal("activation token should hold the code blob")
	}
	stored := models.ParseActivationToken(*client.ActivationToken)
	if !stored.Structured || stored.Code != code {
		t.Errorf("stored blob = %+v, want structured code %q", stored, code)
	}

	// A resend replaces the blob; only the newest code is valid.
	second, err := fx.svc.SendActivationCode(context.Background(), "rossi.srl")
	if err != nil {
		t.Fatal(err)
	}
	if second != code {
		if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", code); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("first code after resend err = %v, want ErrCodeInvalid", err)
		}
	}
	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", second); err != nil {
		t.Errorf("latest code err = %v", err)
	}
}

func TestSendActivationCodeAlreadyActivated(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")
	client.EmailVerified = true

	if _, err := fx.svc.SendActivationCode(context.Background(), "rossi.srl"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("err = %v, want ErrAlreadyVerified", err)
	}
}

func TestVerifyActivationCode(t *testing.T) {
	fx := newActivationFixture(t)
	fx.addPending(t, "rossi.srl", "tok-1")

	code, err := fx.svc.SendActivationCode(context.Background(), "rossi.srl")
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("wrong code err = %v, want ErrCodeInvalid", err)
	}
	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", code); err != nil {
		t.Fatalf("VerifyActivationCode returned error: %v", err)
	}

	// The check does not consume the code.
	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", code); err != nil {
		t.Errorf("repeat check returned %v", err)
	}
}

func TestVerifyActivationCodeExpiredBlob(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")

	blob, err := models.EncodeActivationToken("123456", time.Now().Add(-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	client.ActivationToken = &blob

	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
}

func TestVerifyActivationCodeLegacyBareCode(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "654321")
	past := time.Now().Add(-time.Hour)
	client.ActivationExpires = &past

	// The verify step reads only the blob expiry; a bare code has none, so
	// the legacy column is not consulted here.
	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", "654321"); err != nil {
		t.Fatalf("bare code err = %v, want nil", err)
	}

	// Completion does honor the legacy column for bare codes.
	if _, err := fx.svc.CompleteManualActivation(context.Background(), "rossi.srl", "654321", "brand-new-pass", testMeta()); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("completion err = %v, want ErrCodeExpired", err)
	}
}

func TestCompleteManualActivation(t *testing.T) {
	fx := newActivationFixture(t)
	client := fx.addPending(t, "rossi.srl", "tok-1")

	code, err := fx.svc.SendActivationCode(context.Background(), "rossi.srl")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.CompleteManualActivation(context.Background(), "rossi.srl", code, "short", testMeta()); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password err = %v, want ErrPasswordTooShort", err)
	}
	if _, err := fx.svc.CompleteManualActivation(context.Background(), "rossi.srl", "000000", "brand-new-pass", testMeta()); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("wrong code err = %v, want ErrCodeInvalid", err)
	}

	result, err := fx.svc.CompleteManualActivation(context.Background(), "rossi.srl", code, "brand-new-pass", testMeta())
	if err != nil {
		t.Fatalf("CompleteManualActivation returned error: %v", err)
	}
	if result.Token == "" || result.Client == nil {
		t.Fatalf("incomplete result: %+v", result)
	}
	if client.ActivationToken != nil || !client.EmailVerified {
		t.Errorf("row not activated: %+v", client)
	}
	if log := fx.clients.lastActivityLog(); log == nil || log.Action != "account_activated_manual" {
		t.Errorf("expected account_activated_manual log, got %+v", log)
	}

	// An activated account is terminal for every manual-flow step.
	if _, err := fx.svc.CompleteManualActivation(context.Background(), "rossi.srl", code, "brand-new-pass", testMeta()); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("repeat completion err = %v, want ErrAlreadyVerified", err)
	}
	if err := fx.svc.VerifyActivationCode(context.Background(), "rossi.srl", code); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("verify after activation err = %v, want ErrAlreadyVerified", err)
	}

	// The activated account can log in with the new password.
	authSvc := NewAuthService(newFakeAdminStore(), fx.clients, fx.clients, NewPasswordService(), fx.jwt, nil, fx.mailer, nil, testLogger(), true)
	if _, err := authSvc.Login(context.Background(), "rossi.srl", "brand-new-pass", time.Now(), testMeta()); err != nil {
		t.Errorf("login after activation returned %v", err)
	}
}

package services

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	if _, err := NewJWTService(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewJWTService("test-secret"); err != nil {
		t.Fatalf("unexpected error for non-empty secret: %v", err)
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	userID := uuid.New()

	token, err := svc.IssueAdminToken(userID, "mario@example.com", "ADMIN")
	if err != nil {
		t.Fatalf("IssueAdminToken returned error: %v", err)
	}

	claims, err := svc.ParseAdminToken(token)
	if err != nil {
		t.Fatalf("ParseAdminToken returned error: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %v, want %v", claims.UserID, userID)
	}
	if claims.Email != "mario@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Role != "ADMIN" {
		t.Errorf("Role = %q", claims.Role)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("token must carry an expiry")
	}
}

func TestClientTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	accessID := uuid.New()
	contactID := uuid.New()

	token, err := svc.IssueClientToken(accessID, contactID, "rossi.srl", "QUOTE_ONLY")
	if err != nil {
		t.Fatalf("IssueClientToken returned error: %v", err)
	}

	claims, err := svc.ParseClientToken(token)
	if err != nil {
		t.Fatalf("ParseClientToken returned error: %v", err)
	}
	if claims.ClientAccessID != accessID {
		t.Errorf("ClientAccessID = %v, want %v", claims.ClientAccessID, accessID)
	}
	if claims.ContactID != contactID {
		t.Errorf("ContactID = %v, want %v", claims.ContactID, contactID)
	}
	if claims.Type != "CLIENT" {
		t.Errorf("Type = %q, want CLIENT", claims.Type)
	}
}

func TestClientTokenHasClientType(t *testing.T) {
	svc, _ := NewJWTService("test-secret")

	// An admin token must not authenticate on the client surface.
	adminToken, err := svc.IssueAdminToken(uuid.New(), "mario@example.com", "ADMIN")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ParseClientToken(adminToken); err == nil {
		t.Error("admin token parsed as client token")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewJWTService("secret-one")
	verifier, _ := NewJWTService("secret-two")

	token, err := issuer.IssueAdminToken(uuid.New(), "mario@example.com", "USER")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.ParseAdminToken(token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	svc, _ := NewJWTService("test-secret")

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.ParseAdminToken(token); err == nil {
			t.Errorf("ParseAdminToken(%q) should fail", token)
		}
	}
}

package models

import (
	"testing"
	"time"
)

func TestParseActivationToken(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		raw            string
		wantCode       string
		wantStructured bool
		wantExpiry     bool
	}{
		{
			name:           "structured blob",
			raw:            `{"code":"482193","expiresAt":"2026-03-01T12:00:00Z"}`,
			wantCode:       "482193",
			wantStructured: true,
			wantExpiry:     true,
		},
		{
			name:           "structured without expiry",
			raw:            `{"code":"482193"}`,
			wantCode:       "482193",
			wantStructured: true,
		},
		{
			name:     "legacy bare code",
			raw:      "482193",
			wantCode: "482193",
		},
		{
			name:     "legacy long token",
			raw:      "a3f8c9e1b2d4567890abcdef12345678a3f8c9e1b2d4567890abcdef12345678",
			wantCode: "a3f8c9e1b2d4567890abcdef12345678a3f8c9e1b2d4567890abcdef12345678",
		},
		{
			name:     "json without code field treated as bare",
			raw:      `{"expiresAt":"2026-03-01T12:00:00Z"}`,
			wantCode: `{"expiresAt":"2026-03-01T12:00:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseActivationToken(tt.raw)
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Structured != tt.wantStructured {
				t.Errorf("Structured = %v, want %v", got.Structured, tt.wantStructured)
			}
			if tt.wantExpiry {
				if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
					t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
				}
			} else if got.ExpiresAt != nil {
				t.Errorf("ExpiresAt = %v, want nil", got.ExpiresAt)
			}
		})
	}
}

func TestEncodeActivationTokenRoundTrip(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	blob, err := EncodeActivationToken("482193", expires)
	if err != nil {
		t.Fatalf("EncodeActivationToken returned error: %v", err)
	}

	got := ParseActivationToken(blob)
	if !got.Structured {
		t.Fatal("encoded token should parse as structured")
	}
	if got.Code != "482193" {
		t.Errorf("Code = %q, want %q", got.Code, "482193")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestActivationCodeIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Millisecond)
	after := now.Add(time.Millisecond)

	tests := []struct {
		name    string
		expires *time.Time
		want    bool
	}{
		{"no expiry never expires", nil, false},
		{"future expiry", &after, false},
		{"equal to now is not expired", &now, false},
		{"one millisecond past", &before, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := ActivationCode{Code: "482193", ExpiresAt: tt.expires}
			if got := code.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmailVerificationCodeIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	boundary := EmailVerificationCode{ExpiresAt: now}
	if boundary.IsExpired(now) {
		t.Error("code expiring exactly now should not be expired")
	}

	past := EmailVerificationCode{ExpiresAt: now.Add(-time.Millisecond)}
	if !past.IsExpired(now) {
		t.Error("code one millisecond past expiry should be expired")
	}
}

func TestNextActivation(t *testing.T) {
	tests := []struct {
		name      string
		state     ActivationState
		event     ActivationEvent
		wantState ActivationState
		wantOK    bool
	}{
		{"send from invited", StateInvited, EventSendCode, StateCodeSent, true},
		{"resend", StateCodeSent, EventSendCode, StateCodeSent, true},
		{"send after activation", StateActivated, EventSendCode, StateActivated, false},
		{"verify sent code", StateCodeSent, EventVerifyCode, StateCodeVerified, true},
		{"reverify is allowed", StateCodeVerified, EventVerifyCode, StateCodeVerified, true},
		{"verify without code", StateInvited, EventVerifyCode, StateInvited, false},
		{"complete after verify", StateCodeVerified, EventComplete, StateActivated, true},
		{"complete from code sent", StateCodeSent, EventComplete, StateActivated, true},
		{"complete twice", StateActivated, EventComplete, StateActivated, false},
		{"complete without code", StateInvited, EventComplete, StateInvited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotState, gotOK := NextActivation(tt.state, tt.event)
			if gotState != tt.wantState || gotOK != tt.wantOK {
				t.Errorf("NextActivation(%v, %v) = (%v, %v), want (%v, %v)",
					tt.state, tt.event, gotState, gotOK, tt.wantState, tt.wantOK)
			}
		})
	}
}

func TestDeriveActivationState(t *testing.T) {
	hash := "$2a$12$example"

	tests := []struct {
		name         string
		row          *ClientAccess
		codeSent     bool
		codeVerified bool
		want         ActivationState
	}{
		{"fresh invite", &ClientAccess{}, false, false, StateInvited},
		{"code sent", &ClientAccess{}, true, false, StateCodeSent},
		{"code verified", &ClientAccess{}, true, true, StateCodeVerified},
		{"activated wins", &ClientAccess{PasswordHash: &hash}, true, true, StateActivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveActivationState(tt.row, tt.codeSent, tt.codeVerified); got != tt.want {
				t.Errorf("DeriveActivationState = %v, want %v", got, tt.want)
			}
		})
	}
}

package models

import (
	"encoding/json"
	"time"
)

// ActivationCode is the decoded form of ClientAccess.ActivationToken. The
// column historically holds either a bare code (legacy rows) or a JSON blob
// {"code":..., "expiresAt":...}; parsing yields one of the two shapes
// explicitly instead of shape-sniffing at every call site.
type ActivationCode struct {
	Code       string
	ExpiresAt  *time.Time
	Structured bool
}

type structuredToken struct {
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// ParseActivationToken decodes the activation_token column. A value that
// unmarshals as a JSON object with a code field is the structured shape;
// anything else is a legacy bare code with no embedded expiry.
func ParseActivationToken(raw string) ActivationCode {
	var st structuredToken
	if err := json.Unmarshal([]byte(raw), &st); err == nil && st.Code != "" {
		return ActivationCode{Code: st.Code, ExpiresAt: st.ExpiresAt, Structured: true}
	}
	return ActivationCode{Code: raw}
}

// EncodeActivationToken produces the structured JSON blob stored in
// activation_token by the manual flow's send-activation-code step.
func EncodeActivationToken(code string, expiresAt time.Time) (string, error) {
	data, err := json.Marshal(structuredToken{Code: code, ExpiresAt: &expiresAt})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsExpired reports whether the code is past its expiry. Codes with no known
// expiry never expire from this check. Expiry equal to now is still valid;
// only a strictly earlier instant counts as expired.
func (a ActivationCode) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// ActivationState is the explicit state of a client account's activation,
// derived from the persisted row plus the verification-code table.
type ActivationState int

const (
	StateInvited ActivationState = iota
	StateCodeSent
	StateCodeVerified
	StateActivated
)

func (s ActivationState) String() string {
	switch s {
	case StateInvited:
		return "INVITED"
	case StateCodeSent:
		return "CODE_SENT"
	case StateCodeVerified:
		return "CODE_VERIFIED"
	case StateActivated:
		return "ACTIVATED"
	}
	return "UNKNOWN"
}

// ActivationEvent is a step attempted against an account.
type ActivationEvent int

const (
	EventSendCode ActivationEvent = iota
	EventVerifyCode
	EventComplete
)

// DeriveActivationState computes the current state from the row and from
// whether a code has been sent to / verified for the contact's email.
func DeriveActivationState(row *ClientAccess, codeSent, codeVerified bool) ActivationState {
	switch {
	case row.PasswordHash != nil:
		return StateActivated
	case codeVerified:
		return StateCodeVerified
	case codeSent:
		return StateCodeSent
	default:
		return StateInvited
	}
}

// NextActivation is the single place transition legality is decided. It
// returns the state after applying the event and whether the event is legal
// from the current state. Completion is legal from CodeSent because the
// manual flow re-validates the code during completion itself; re-verifying
// an already verified code is legal because verification does not consume
// the code.
func NextActivation(state ActivationState, event ActivationEvent) (ActivationState, bool) {
	switch event {
	case EventSendCode:
		if state == StateInvited || state == StateCodeSent {
			return StateCodeSent, true
		}
	case EventVerifyCode:
		if state == StateCodeSent || state == StateCodeVerified {
			return StateCodeVerified, true
		}
	case EventComplete:
		if state == StateCodeSent || state == StateCodeVerified {
			return StateActivated, true
		}
	}
	return state, false
}

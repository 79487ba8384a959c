package domain

import "time"

// AuthState is the authorization state of the process-wide YouTube
// credential.
type AuthState int

const (
	AuthUnauthorized AuthState = iota
	AuthPendingRedirect
	AuthAuthorized
)

func (s AuthState) String() string {
	switch s {
	case AuthUnauthorized:
		return "unauthorized"
	case AuthPendingRedirect:
		return "pending_redirect"
	case AuthAuthorized:
		return "authorized"
	}
	return "unknown"
}

// Credential holds the persisted OAuth tokens for the remote account.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

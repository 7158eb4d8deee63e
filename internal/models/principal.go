package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PrincipalKind string

const (
	KindAdministrator PrincipalKind = "administrator"
	KindStudent       PrincipalKind = "student"
	KindLecturer      PrincipalKind = "lecturer"
)

func (k PrincipalKind) Valid() bool {
	switch k {
	case KindAdministrator, KindStudent, KindLecturer:
		return true
	}
	return false
}

// Principal is the authenticated identity behind a session.
type Principal struct {
	AccountID   uuid.UUID     `json:"account_id"`
	Kind        PrincipalKind `json:"kind"`
	ExternalID  string        `json:"external_id"` // email or student ID
	DisplayName string        `json:"display_name"`
}

// Key identifies the principal for the single-session rule. Identifiers
// compare case-insensitively.
func (p Principal) Key() string {
	return string(p.Kind) + ":" + strings.ToLower(strings.TrimSpace(p.ExternalID))
}

// Account is the stored credential record a principal is authenticated against.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Kind         PrincipalKind `json:"kind"`
	ExternalID   string        `json:"external_id"`
	DisplayName  string        `json:"display_name"`
	PasswordHash string        `json:"-"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	LastLoginAt  *time.Time    `json:"last_login_at"`
}

func (a *Account) Principal() Principal {
	return Principal{AccountID: a.ID, Kind: a.Kind, ExternalID: a.ExternalID, DisplayName: a.DisplayName}
}

type LoginRequest struct {
	Kind       PrincipalKind `json:"kind"`
	Identifier string        `json:"identifier"`
	Password   string        `json:"password"`
}

type AuthTokens struct {
	AccessToken string    `json:"access_token"`
	SessionID   uuid.UUID `json:"session_id"`
	ExpiresIn   int       `json:"expires_in"`
}

// Package models holds the authentication aggregates: accounts, credentials,
// sessions, MFA material, login attempts, and MFA challenges.
package models

import (
	"errors"
	"time"

	id "girok/pkg/domain"
)

// ErrExternalIDTaken reports an external-ID uniqueness collision on insert.
// The random suffix makes these rare; registration regenerates and retries.
var ErrExternalIDTaken = errors.New("external id already allocated")

// CredentialKind distinguishes local passwords from OAuth-provider accounts.
type CredentialKind string

const (
	CredentialLocal  CredentialKind = "LOCAL"
	CredentialGoogle CredentialKind = "GOOGLE"
	CredentialKakao  CredentialKind = "KAKAO"
	CredentialApple  CredentialKind = "APPLE"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountLocked    AccountStatus = "LOCKED"
	AccountSuspended AccountStatus = "SUSPENDED"
)

// AccountMode partitions the identity space by privilege.
type AccountMode string

const (
	ModeUser     AccountMode = "USER"
	ModeAdmin    AccountMode = "ADMIN"
	ModeOperator AccountMode = "OPERATOR"
	ModeService  AccountMode = "SERVICE"
)

// Account is the identity subject. Accounts are never hard-deleted; erasure
// flows through the DSR engine.
type Account struct {
	ID             id.AccountID
	ExternalID     string
	Email          string
	Username       string
	CredentialKind CredentialKind
	Status         AccountStatus
	Mode           AccountMode
	MFAEnabled     bool
	EmailVerified  bool
	Country        string
	Locale         string
	Timezone       string
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Credential is the hashed password, exclusively owned by its account.
// The hash is bcrypt, which embeds salt and cost parameters.
type Credential struct {
	AccountID    id.AccountID
	PasswordHash string
	UpdatedAt    time.Time
}

// MFAState is the setup lifecycle of the second factor.
type MFAState string

const (
	MFADisabled    MFAState = "DISABLED"
	MFAProvisioned MFAState = "PROVISIONED"
	MFAEnabled     MFAState = "ENABLED"
)

// MFASecret is the TOTP secret plus backup-code hashes, exclusively owned by
// its account. Rotated atomically on regenerate; destroyed on disable.
type MFASecret struct {
	AccountID        id.AccountID
	State            MFAState
	TOTPSecret       string
	BackupCodeHashes []string
	UpdatedAt        time.Time
}

// SessionContext distinguishes end-user sessions from operator consoles.
type SessionContext string

const (
	ContextUser     SessionContext = "USER"
	ContextOperator SessionContext = "OPERATOR"
)

// Session is the server-side session record. Only the SHA-256 digest of the
// opaque refresh token is stored.
type Session struct {
	ID                id.SessionID
	AccountID         id.AccountID
	RefreshTokenHash  string
	DeviceFingerprint string
	DeviceName        string
	IPAddress         string
	UserAgent         string
	Context           SessionContext
	MFAVerified       bool
	MFARequired       bool
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the session is past its refresh lifetime.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginAttempt is an append-only record used for rolling failure accounting.
// EmailEntered is stored as typed so lockout applies per identifier even when
// no account exists.
type LoginAttempt struct {
	ID           id.AccountID
	AccountID    id.AccountID
	EmailEntered string
	IPAddress    string
	UserAgent    string
	Success      bool
	Reason       string
	CreatedAt    time.Time
}

// MFAChallenge is the short-lived record bridging login's two steps. It lives
// in the shared cache so any replica can complete a challenge minted by
// another.
type MFAChallenge struct {
	ID        string       `json:"id"`
	AccountID id.AccountID `json:"account_id"`
	Email     string       `json:"email"`
	Methods   []string     `json:"methods"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Available MFA methods offered to the client on a challenge.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

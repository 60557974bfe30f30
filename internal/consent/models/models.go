// Package models defines the consent aggregate.
package models

import (
	"time"

	id "girok/pkg/domain"
)

// Status is the consent lifecycle state. WITHDRAWN and EXPIRED are terminal.
type Status string

const (
	StatusGranted   Status = "GRANTED"
	StatusWithdrawn Status = "WITHDRAWN"
	StatusExpired   Status = "EXPIRED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusGranted, StatusWithdrawn, StatusExpired:
		return Status(s), true
	}
	return "", false
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusWithdrawn || s == StatusExpired
}

// Consent records one account's consent to one document version. At most one
// GRANTED row exists per (account, document).
type Consent struct {
	ID          id.ConsentID
	AccountID   id.AccountID
	DocumentID  id.DocumentID
	Status      Status
	GrantedAt   time.Time
	ExpiresAt   *time.Time
	WithdrawnAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveAt reports whether the consent counts as granted at the given
// instant. A GRANTED row past its expiry reads as not effective even before
// the sweep transitions it.
func (c *Consent) EffectiveAt(now time.Time) bool {
	if c.Status != StatusGranted {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

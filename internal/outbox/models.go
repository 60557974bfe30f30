// Package outbox implements the transactional outbox: event rows commit in
// the same DB transaction as the state change they describe, and a background
// worker drains them to Kafka at-least-once.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names. Tokens are stable identifiers consumed downstream; renaming
// one is a breaking change.
const (
	EventAccountRegistered = "ACCOUNT_REGISTERED"
	EventLoginSuccess      = "LOGIN_SUCCESS"
	EventMFAFailed         = "MFA_FAILED"
	EventLogout            = "LOGOUT"
	EventPasswordChanged   = "PASSWORD_CHANGED"

	EventSanctionApplied         = "SANCTION_APPLIED"
	EventSanctionRevoked         = "SANCTION_REVOKED"
	EventSanctionExtended        = "SANCTION_EXTENDED"
	EventSanctionReduced         = "SANCTION_REDUCED"
	EventSanctionAppealSubmitted = "SANCTION_APPEAL_SUBMITTED"
	EventSanctionAppealReviewed  = "SANCTION_APPEAL_REVIEWED"

	EventConsentGranted      = "CONSENT_GRANTED"
	EventConsentWithdrawn    = "CONSENT_WITHDRAWN"
	EventConsentExpiringSoon = "CONSENT_EXPIRING_SOON"
	EventConsentExpired      = "CONSENT_EXPIRED"

	EventDSRSubmitted        = "DSR_SUBMITTED"
	EventDSRStatusChanged    = "DSR_STATUS_CHANGED"
	EventDSRDeadlineWarning  = "DSR_DEADLINE_WARNING"
	EventDSRDeadlineCritical = "DSR_DEADLINE_CRITICAL"
	EventDSRDeadlineOverdue  = "DSR_DEADLINE_OVERDUE"
	EventDSRDailySummary     = "dsr.daily.summary"
)

// Aggregate families. Each maps to one Kafka topic.
const (
	AggregateAccount  = "account"
	AggregateSanction = "sanction"
	AggregateConsent  = "consent"
	AggregateDSR      = "dsr"
)

// Event is one intent-to-publish row. Consumers dedupe on
// (AggregateID, EventType, CreatedAt).
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
	RetryCount    int
	NextAttemptAt time.Time
}

// Backoff policy for the publisher: next = now + min(2^retry * base, cap).
const (
	backoffBase = time.Second
	backoffCap  = 5 * time.Minute
	// MaxAttempts after which a row is left for the operator sweep. Rows are
	// never dropped.
	MaxAttempts = 10
)

// NextAttempt computes the publisher backoff for a given retry count.
func NextAttempt(now time.Time, retryCount int) time.Time {
	d := backoffBase
	for i := 0; i < retryCount && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	return now.Add(d)
}

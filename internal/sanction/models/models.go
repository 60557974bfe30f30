// Package models holds the sanction aggregate: the sanction state machine
// and its embedded appeal sub-machine. One appeal per sanction, so the appeal
// lives on the row rather than in a child table.
package models

import (
	"time"

	id "girok/pkg/domain"
)

// SubjectType identifies what kind of principal a sanction binds.
type SubjectType string

const (
	SubjectAccount  SubjectType = "ACCOUNT"
	SubjectOperator SubjectType = "OPERATOR"
)

// ParseSubjectType validates a wire value.
func ParseSubjectType(s string) (SubjectType, bool) {
	switch SubjectType(s) {
	case SubjectAccount, SubjectOperator:
		return SubjectType(s), true
	}
	return "", false
}

// Type is the sanction kind.
type Type string

const (
	TypeWarning            Type = "WARNING"
	TypeTemporaryBan       Type = "TEMPORARY_BAN"
	TypePermanentBan       Type = "PERMANENT_BAN"
	TypeFeatureRestriction Type = "FEATURE_RESTRICTION"
)

// ParseType validates a wire value.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeWarning, TypeTemporaryBan, TypePermanentBan, TypeFeatureRestriction:
		return Type(s), true
	}
	return "", false
}

// Status is the sanction lifecycle state. EXPIRED and REVOKED are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// AppealStatus is the appeal sub-state. Empty means no appeal was filed.
type AppealStatus string

const (
	AppealNone        AppealStatus = ""
	AppealPending     AppealStatus = "PENDING"
	AppealUnderReview AppealStatus = "UNDER_REVIEW"
	AppealApproved    AppealStatus = "APPROVED"
	AppealRejected    AppealStatus = "REJECTED"
	AppealEscalated   AppealStatus = "ESCALATED"
)

// Decided reports whether the appeal reached a terminal decision.
func (a AppealStatus) Decided() bool {
	return a == AppealApproved || a == AppealRejected || a == AppealEscalated
}

// Sanction is one disciplinary record against a subject. ServiceID scopes
// the sanction to a single service; nil means platform-wide.
type Sanction struct {
	ID                 id.SanctionID
	SubjectID          id.AccountID
	SubjectType        SubjectType
	ServiceID          *id.ServiceID
	Type               Type
	Severity           int
	RestrictedFeatures []string
	Reason             string
	InternalNote       string
	EvidenceURLs       []string
	IssuerID           id.AccountID
	IssuerType         SubjectType
	StartAt            time.Time
	EndAt              *time.Time
	Status             Status

	AppealStatus   AppealStatus
	AppealReason   string
	AppealedAt     *time.Time
	ReviewerID     *id.AccountID
	ReviewResponse string
	ReviewedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveAt reports whether the sanction's window contains now. Status is
// checked separately; this is pure window arithmetic.
func (s *Sanction) ActiveAt(now time.Time) bool {
	if now.Before(s.StartAt) {
		return false
	}
	return s.EndAt == nil || now.Before(*s.EndAt)
}

// AppliesTo reports whether the sanction's scope covers the given service.
// Platform sanctions always apply; service sanctions only on a match.
func (s *Sanction) AppliesTo(serviceID *id.ServiceID) bool {
	if s.ServiceID == nil {
		return true
	}
	return serviceID != nil && *s.ServiceID == *serviceID
}

// ActiveSet is the answer to the active-set query.
type ActiveSet struct {
	Sanctions           []*Sanction `json:"sanctions"`
	RestrictedFeatures  []string    `json:"restricted_features"`
	IsPermanentlyBanned bool        `json:"is_permanently_banned"`
}

// Package models defines the DSR request aggregate: the request state
// machine, deadline arithmetic per legal basis, and the escalation order.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "girok/pkg/domain"
)

// Type is the kind of data subject request.
type Type string

const (
	TypeAccess        Type = "ACCESS"
	TypeErasure       Type = "ERASURE"
	TypePortability   Type = "PORTABILITY"
	TypeRectification Type = "RECTIFICATION"
	TypeRestriction   Type = "RESTRICTION"
	TypeObjection     Type = "OBJECTION"
)

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeAccess, TypeErasure, TypePortability, TypeRectification, TypeRestriction, TypeObjection:
		return Type(s), true
	}
	return "", false
}

// Status is the request lifecycle state.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusVerified     Status = "VERIFIED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusAwaitingInfo Status = "AWAITING_INFO"
	StatusCompleted    Status = "COMPLETED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusVerified, StatusInProgress, StatusAwaitingInfo,
		StatusCompleted, StatusRejected, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// transitions is the closed transition table. Absent keys are terminal.
var transitions = map[Status][]Status{
	StatusPending:      {StatusVerified, StatusRejected, StatusCancelled},
	StatusVerified:     {StatusInProgress, StatusRejected},
	StatusInProgress:   {StatusAwaitingInfo, StatusCompleted, StatusRejected},
	StatusAwaitingInfo: {StatusInProgress, StatusCancelled},
}

// CanTransitionTo reports whether the move from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders operator worklists. It does not affect deadlines.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s), true
	}
	return "", false
}

// EscalationLevel is the monotone deadline severity tag.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = "NONE"
	EscalationWarning  EscalationLevel = "WARNING"
	EscalationCritical EscalationLevel = "CRITICAL"
	EscalationOverdue  EscalationLevel = "OVERDUE"
)

var escalationRank = map[EscalationLevel]int{
	EscalationNone:     0,
	EscalationWarning:  1,
	EscalationCritical: 2,
	EscalationOverdue:  3,
}

// Rank positions the level in the total order NONE < WARNING < CRITICAL <
// OVERDUE.
func (l EscalationLevel) Rank() int { return escalationRank[l] }

// LevelFor maps remaining time to a deadline into its escalation tier.
func LevelFor(remaining time.Duration) EscalationLevel {
	switch {
	case remaining <= 0:
		return EscalationOverdue
	case remaining <= 2*24*time.Hour:
		return EscalationCritical
	case remaining <= 7*24*time.Hour:
		return EscalationWarning
	}
	return EscalationNone
}

// DeadlineDays returns the statutory response window for a legal basis.
func DeadlineDays(legalBasis string) int {
	switch legalBasis {
	case "GDPR":
		return 30
	case "CCPA":
		return 45
	case "PIPA":
		return 10
	case "APPI":
		return 14
	}
	return 30
}

// Request is one data subject request.
type Request struct {
	ID              id.DSRID
	AccountID       id.AccountID
	Type            Type
	Status          Status
	Priority        Priority
	Scope           json.RawMessage
	LegalBasis      string
	Deadline        time.Time
	ExtendedTo      *time.Time
	ExtensionReason string
	EscalationLevel EscalationLevel
	EscalatedAt     *time.Time
	AssigneeID      *id.AccountID
	ResponseType    string
	ResponseBody    string
	ResponseNote    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EffectiveDeadline is the extended deadline when present, else the original.
func (r *Request) EffectiveDeadline() time.Time {
	if r.ExtendedTo != nil {
		return *r.ExtendedTo
	}
	return r.Deadline
}

// RequestLog is one append-only audit row. OperatorID is nil for actions
// taken by the subject or by the escalation sweep.
type RequestLog struct {
	ID         uuid.UUID
	RequestID  id.DSRID
	Action     string
	OperatorID *id.AccountID
	Details    json.RawMessage
	IP         string
	CreatedAt  time.Time
}

// Statistics is the observational summary emitted daily and served by the
// statistics endpoint.
type Statistics struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	InProgress  int `json:"in_progress"`
	Approaching int `json:"approaching"`
	Overdue     int `json:"overdue"`
	Completed   int `json:"completed"`
}

package handler

import (
	"time"

	"girok/internal/sanction/models"
	"girok/internal/sanction/service"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
)

// CreateRequest is the POST /sanctions body. Issuer identity comes from
// X-Operator-Id, not the body.
type CreateRequest struct {
	SubjectID          string     `json:"subject_id"`
	SubjectType        string     `json:"subject_type"`
	ServiceID          string     `json:"service_id,omitempty"`
	Type               string     `json:"type"`
	Severity           int        `json:"severity"`
	RestrictedFeatures []string   `json:"restricted_features,omitempty"`
	Reason             string     `json:"reason"`
	InternalNote       string     `json:"internal_note,omitempty"`
	EvidenceURLs       []string   `json:"evidence_urls,omitempty"`
	StartAt            *time.Time `json:"start_at,omitempty"`
	EndAt              *time.Time `json:"end_at,omitempty"`
}

func (r CreateRequest) toService(operatorID id.AccountID) (service.CreateRequest, error) {
	var req service.CreateRequest

	subjectID, err := id.ParseAccountID(r.SubjectID)
	if err != nil {
		return req, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_id")
	}
	subjectType, ok := models.ParseSubjectType(r.SubjectType)
	if !ok {
		return req, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_type")
	}
	sanctionType, ok := models.ParseType(r.Type)
	if !ok {
		return req, dErrors.New(dErrors.CodeInvalidInput, "invalid type")
	}
	var serviceID *id.ServiceID
	if r.ServiceID != "" {
		parsed, err := id.ParseServiceID(r.ServiceID)
		if err != nil {
			return req, dErrors.New(dErrors.CodeInvalidInput, "invalid service_id")
		}
		serviceID = &parsed
	}

	req = service.CreateRequest{
		SubjectID:          subjectID,
		SubjectType:        subjectType,
		ServiceID:          serviceID,
		Type:               sanctionType,
		Severity:           r.Severity,
		RestrictedFeatures: r.RestrictedFeatures,
		Reason:             r.Reason,
		InternalNote:       r.InternalNote,
		EvidenceURLs:       r.EvidenceURLs,
		IssuerID:           operatorID,
		IssuerType:         models.SubjectOperator,
		EndAt:              r.EndAt,
	}
	if r.StartAt != nil {
		req.StartAt = *r.StartAt
	}
	return req, nil
}

// AmendRequest covers revoke, extend, and reduce. Revoke ignores EndAt.
type AmendRequest struct {
	Reason string     `json:"reason"`
	EndAt  *time.Time `json:"end_at,omitempty"`
}

// AppealRequest is the subject's appeal body.
type AppealRequest struct {
	Reason string `json:"reason"`
}

// AppealReviewRequest advances the appeal sub-state.
type AppealReviewRequest struct {
	Decision string `json:"decision"`
	Response string `json:"response,omitempty"`
}

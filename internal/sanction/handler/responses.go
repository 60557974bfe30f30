package handler

import (
	"time"

	"girok/internal/sanction/models"
)

// SanctionResponse is the wire shape of one sanction. Internal note and
// evidence stay operator-visible; the route policy keeps subjects off the
// detail endpoints.
type SanctionResponse struct {
	ID                 string     `json:"id"`
	SubjectID          string     `json:"subject_id"`
	SubjectType        string     `json:"subject_type"`
	ServiceID          string     `json:"service_id,omitempty"`
	Type               string     `json:"type"`
	Severity           int        `json:"severity"`
	RestrictedFeatures []string   `json:"restricted_features,omitempty"`
	Reason             string     `json:"reason"`
	InternalNote       string     `json:"internal_note,omitempty"`
	EvidenceURLs       []string   `json:"evidence_urls,omitempty"`
	IssuerID           string     `json:"issuer_id"`
	IssuerType         string     `json:"issuer_type"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              *time.Time `json:"end_at,omitempty"`
	Status             string     `json:"status"`
	AppealStatus       string     `json:"appeal_status,omitempty"`
	AppealReason       string     `json:"appeal_reason,omitempty"`
	AppealedAt         *time.Time `json:"appealed_at,omitempty"`
	ReviewerID         string     `json:"reviewer_id,omitempty"`
	ReviewResponse     string     `json:"review_response,omitempty"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func FromSanction(sanc *models.Sanction) SanctionResponse {
	resp := SanctionResponse{
		ID:                 sanc.ID.String(),
		SubjectID:          sanc.SubjectID.String(),
		SubjectType:        string(sanc.SubjectType),
		Type:               string(sanc.Type),
		Severity:           sanc.Severity,
		RestrictedFeatures: sanc.RestrictedFeatures,
		Reason:             sanc.Reason,
		InternalNote:       sanc.InternalNote,
		EvidenceURLs:       sanc.EvidenceURLs,
		IssuerID:           sanc.IssuerID.String(),
		IssuerType:         string(sanc.IssuerType),
		StartAt:            sanc.StartAt,
		EndAt:              sanc.EndAt,
		Status:             string(sanc.Status),
		AppealStatus:       string(sanc.AppealStatus),
		AppealReason:       sanc.AppealReason,
		AppealedAt:         sanc.AppealedAt,
		ReviewResponse:     sanc.ReviewResponse,
		ReviewedAt:         sanc.ReviewedAt,
		CreatedAt:          sanc.CreatedAt,
		UpdatedAt:          sanc.UpdatedAt,
	}
	if sanc.ServiceID != nil {
		resp.ServiceID = sanc.ServiceID.String()
	}
	if sanc.ReviewerID != nil {
		resp.ReviewerID = sanc.ReviewerID.String()
	}
	return resp
}

func FromSanctions(sanctions []*models.Sanction) []SanctionResponse {
	out := make([]SanctionResponse, 0, len(sanctions))
	for _, sanc := range sanctions {
		out = append(out, FromSanction(sanc))
	}
	return out
}

// ActiveSetResponse is the enforcement answer.
type ActiveSetResponse struct {
	Sanctions           []SanctionResponse `json:"sanctions"`
	RestrictedFeatures  []string           `json:"restricted_features"`
	IsPermanentlyBanned bool               `json:"is_permanently_banned"`
}

func FromActiveSet(set *models.ActiveSet) ActiveSetResponse {
	return ActiveSetResponse{
		Sanctions:           FromSanctions(set.Sanctions),
		RestrictedFeatures:  set.RestrictedFeatures,
		IsPermanentlyBanned: set.IsPermanentlyBanned,
	}
}

package handler

import (
	"encoding/json"
	"time"

	"girok/internal/dsr/models"
	"girok/internal/dsr/service"
	id "girok/pkg/domain"
)

// SubmitRequest is the POST /dsr-requests body.
type SubmitRequest struct {
	Type       string          `json:"type"`
	Scope      json.RawMessage `json:"scope,omitempty"`
	LegalBasis string          `json:"legal_basis,omitempty"`
	Priority   string          `json:"priority,omitempty"`
}

func (r SubmitRequest) toService(accountID id.AccountID, ip string) service.SubmitRequest {
	return service.SubmitRequest{
		AccountID:  accountID,
		Type:       models.Type(r.Type),
		Scope:      r.Scope,
		LegalBasis: r.LegalBasis,
		Priority:   models.Priority(r.Priority),
		IP:         ip,
	}
}

// ProcessRequest is the POST /dsr-requests/{id}/process body.
type ProcessRequest struct {
	Status       string `json:"status"`
	ResponseType string `json:"response_type,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	Note         string `json:"note,omitempty"`
}

// ExtendRequest is the POST /dsr-requests/{id}/extend-deadline body.
type ExtendRequest struct {
	ExtendedTo time.Time `json:"extended_to"`
	Reason     string    `json:"reason"`
}

// AssignRequest is the POST /dsr-requests/{id}/assign body.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

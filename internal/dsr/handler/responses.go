package handler

import (
	"encoding/json"
	"time"

	"girok/internal/dsr/models"
)

// RequestResponse is the wire shape of one DSR request.
type RequestResponse struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Priority        string          `json:"priority"`
	Scope           json.RawMessage `json:"scope,omitempty"`
	LegalBasis      string          `json:"legal_basis,omitempty"`
	Deadline        time.Time       `json:"deadline"`
	ExtendedTo      *time.Time      `json:"extended_to,omitempty"`
	ExtensionReason string          `json:"extension_reason,omitempty"`
	EscalationLevel string          `json:"escalation_level"`
	EscalatedAt     *time.Time      `json:"escalated_at,omitempty"`
	AssigneeID      string          `json:"assignee_id,omitempty"`
	ResponseType    string          `json:"response_type,omitempty"`
	ResponseBody    string          `json:"response_body,omitempty"`
	ResponseNote    string          `json:"response_note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func FromRequest(req *models.Request) RequestResponse {
	resp := RequestResponse{
		ID:              req.ID.String(),
		AccountID:       req.AccountID.String(),
		Type:            string(req.Type),
		Status:          string(req.Status),
		Priority:        string(req.Priority),
		Scope:           req.Scope,
		LegalBasis:      req.LegalBasis,
		Deadline:        req.Deadline,
		ExtendedTo:      req.ExtendedTo,
		ExtensionReason: req.ExtensionReason,
		EscalationLevel: string(req.EscalationLevel),
		EscalatedAt:     req.EscalatedAt,
		ResponseType:    req.ResponseType,
		ResponseBody:    req.ResponseBody,
		ResponseNote:    req.ResponseNote,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
	if req.AssigneeID != nil {
		resp.AssigneeID = req.AssigneeID.String()
	}
	return resp
}

func FromRequests(requests []*models.Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, FromRequest(req))
	}
	return out
}

// LogResponse is the wire shape of one audit row.
type LogResponse struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	OperatorID string          `json:"operator_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	IP         string          `json:"ip,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func FromLog(log *models.RequestLog) LogResponse {
	resp := LogResponse{
		ID:        log.ID.String(),
		Action:    log.Action,
		Details:   log.Details,
		IP:        log.IP,
		CreatedAt: log.CreatedAt,
	}
	if log.OperatorID != nil {
		resp.OperatorID = log.OperatorID.String()
	}
	return resp
}

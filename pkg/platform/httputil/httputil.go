// Package httputil renders the error envelope and JSON responses used by
// every handler. The envelope shape is part of the public contract.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "girok/pkg/domain-errors"
)

// ErrorBody is the wire form of a failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code, a user-safe message, and optional
// structured details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListMeta is the pagination block on list responses.
type ListMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// ListBody wraps list payloads with pagination metadata.
type ListBody struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

// NewListMeta computes totalPages from total and limit.
func NewListMeta(total, page, limit int) ListMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return ListMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// WriteJSON serializes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the envelope. Internal causes are never
// serialized; unclassified errors surface as a generic INTERNAL.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		de = dErrors.New(dErrors.CodeInternal, "internal error")
	}
	detail := ErrorDetail{
		Code:    string(de.Code),
		Message: de.Message,
		Details: de.Details,
	}
	if de.Code == dErrors.CodeInternal {
		detail.Message = "internal error"
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), ErrorBody{Error: detail})
}

// Decode parses the JSON body into T. A malformed body writes the 400
// envelope and returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		var zero T
		return zero, false
	}
	return req, true
}

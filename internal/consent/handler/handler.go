// Package handler exposes the consent endpoints. All routes are mounted
// behind the session guard; the acting account comes from the request
// context.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"girok/internal/consent/models"
	"girok/internal/consent/service"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/httputil"
)

// Service is the slice of the consent service the handler depends on.
type Service interface {
	Grant(ctx context.Context, req service.GrantRequest) (*models.Consent, error)
	Withdraw(ctx context.Context, consentID id.ConsentID, accountID id.AccountID) (*models.Consent, error)
	Get(ctx context.Context, consentID id.ConsentID, accountID id.AccountID) (*models.Consent, error)
	List(ctx context.Context, accountID id.AccountID) ([]*models.Consent, error)
	Status(ctx context.Context, accountID id.AccountID, documentID id.DocumentID) (*service.StatusResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the consent routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents", h.HandleGrant)
	r.Get("/consents", h.HandleList)
	r.Get("/consents/status", h.HandleStatus)
	r.Get("/consents/{consentID}", h.HandleGet)
	r.Post("/consents/{consentID}/withdraw", h.HandleWithdraw)
}

// GrantRequest is the POST /consents body.
type GrantRequest struct {
	DocumentID string     `json:"document_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ConsentResponse is the wire shape of one consent.
type ConsentResponse struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	DocumentID  string     `json:"document_id"`
	Status      string     `json:"status"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

func FromConsent(c *models.Consent) ConsentResponse {
	return ConsentResponse{
		ID:          c.ID.String(),
		AccountID:   c.AccountID.String(),
		DocumentID:  c.DocumentID.String(),
		Status:      string(c.Status),
		GrantedAt:   c.GrantedAt,
		ExpiresAt:   c.ExpiresAt,
		WithdrawnAt: c.WithdrawnAt,
	}
}

func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[GrantRequest](w, r, h.logger)
	if !ok {
		return
	}
	documentID, err := id.ParseDocumentID(req.DocumentID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid document_id"))
		return
	}
	consent, err := h.service.Grant(ctx, service.GrantRequest{
		AccountID:  middleware.GetAccountID(ctx),
		DocumentID: documentID,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logError(ctx, "consent grant failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromConsent(consent))
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consentID, ok := pathConsentID(w, r)
	if !ok {
		return
	}
	consent, err := h.service.Withdraw(ctx, consentID, middleware.GetAccountID(ctx))
	if err != nil {
		h.logError(ctx, "consent withdrawal failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromConsent(consent))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consentID, ok := pathConsentID(w, r)
	if !ok {
		return
	}
	consent, err := h.service.Get(ctx, consentID, middleware.GetAccountID(ctx))
	if err != nil {
		h.logError(ctx, "consent fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromConsent(consent))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consents, err := h.service.List(ctx, middleware.GetAccountID(ctx))
	if err != nil {
		h.logError(ctx, "consent list failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]ConsentResponse, 0, len(consents))
	for _, c := range consents {
		out = append(out, FromConsent(c))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: out,
		Meta: httputil.NewListMeta(len(out), 1, len(out)),
	})
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(r.URL.Query().Get("document_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid document_id"))
		return
	}
	result, err := h.service.Status(ctx, middleware.GetAccountID(ctx), documentID)
	if err != nil {
		h.logError(ctx, "consent status lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func pathConsentID(w http.ResponseWriter, r *http.Request) (id.ConsentID, bool) {
	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid consent id"))
		return id.ConsentID{}, false
	}
	return consentID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx), "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx), "error", err)
}

// Package handler exposes the legal registry endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"girok/internal/legal/models"
	"girok/internal/legal/service"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/httputil"
)

// Service is the slice of the legal service the handler depends on.
type Service interface {
	CreateVersion(ctx context.Context, req service.CreateVersionRequest) (*models.Document, error)
	Latest(ctx context.Context, docType models.DocumentType, locale string, country *string, serviceID *id.ServiceID) (*models.Document, error)
	Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	ListVersions(ctx context.Context, docType models.DocumentType, locale string) ([]*models.Document, error)
	LawByCode(ctx context.Context, code string) (*models.Law, error)
	ConsentRequirementsForCountry(ctx context.Context, country string) (*models.ConsentRequirements, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterOperator mounts the version-cut endpoint behind the operator guard.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/legal/documents", h.HandleCreateVersion)
}

// RegisterPublic mounts the read endpoints. Document texts are public by
// nature.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/legal/documents/latest", h.HandleLatest)
	r.Get("/legal/documents/{documentID}", h.HandleGet)
	r.Get("/legal/documents", h.HandleListVersions)
	r.Get("/legal/laws/{code}", h.HandleLawByCode)
	r.Get("/legal/requirements", h.HandleRequirements)
}

// CreateVersionRequest is the POST /legal/documents body.
type CreateVersionRequest struct {
	Type          string     `json:"type"`
	Version       string     `json:"version"`
	Locale        string     `json:"locale"`
	ServiceID     string     `json:"service_id,omitempty"`
	Country       *string    `json:"country,omitempty"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Summary       string     `json:"summary,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// DocumentResponse is the wire shape of one document version.
type DocumentResponse struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Version       string     `json:"version"`
	Locale        string     `json:"locale"`
	ServiceID     string     `json:"service_id,omitempty"`
	Country       *string    `json:"country,omitempty"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Summary       string     `json:"summary,omitempty"`
	EffectiveDate time.Time  `json:"effective_date"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
}

func FromDocument(doc *models.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:            doc.ID.String(),
		Type:          string(doc.Type),
		Version:       doc.Version,
		Locale:        doc.Locale,
		Country:       doc.Country,
		Title:         doc.Title,
		Body:          doc.Body,
		Summary:       doc.Summary,
		EffectiveDate: doc.EffectiveDate,
		ExpiresAt:     doc.ExpiresAt,
		IsActive:      doc.IsActive,
	}
	if doc.ServiceID != nil {
		resp.ServiceID = doc.ServiceID.String()
	}
	return resp
}

func (h *Handler) HandleCreateVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[CreateVersionRequest](w, r, h.logger)
	if !ok {
		return
	}
	svcReq := service.CreateVersionRequest{
		Type:      models.DocumentType(req.Type),
		Version:   req.Version,
		Locale:    req.Locale,
		Country:   req.Country,
		Title:     req.Title,
		Body:      req.Body,
		Summary:   req.Summary,
		ExpiresAt: req.ExpiresAt,
	}
	if req.EffectiveDate != nil {
		svcReq.EffectiveDate = *req.EffectiveDate
	}
	if req.ServiceID != "" {
		serviceID, err := id.ParseServiceID(req.ServiceID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid service_id"))
			return
		}
		svcReq.ServiceID = &serviceID
	}

	doc, err := h.service.CreateVersion(ctx, svcReq)
	if err != nil {
		h.logError(ctx, "document version cut failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromDocument(doc))
}

func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	docType, ok := models.ParseDocumentType(query.Get("type"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid type"))
		return
	}
	var country *string
	if raw := query.Get("country"); raw != "" {
		country = &raw
	}
	var serviceID *id.ServiceID
	if raw := query.Get("service_id"); raw != "" {
		parsed, err := id.ParseServiceID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid service_id"))
			return
		}
		serviceID = &parsed
	}

	doc, err := h.service.Latest(ctx, docType, query.Get("locale"), country, serviceID)
	if err != nil {
		h.logError(ctx, "document resolution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid document id"))
		return
	}
	doc, err := h.service.Get(ctx, documentID)
	if err != nil {
		h.logError(ctx, "document fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	docType, ok := models.ParseDocumentType(query.Get("type"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid type"))
		return
	}
	locale := query.Get("locale")
	if locale == "" {
		locale = "en"
	}
	docs, err := h.service.ListVersions(ctx, docType, locale)
	if err != nil {
		h.logError(ctx, "document version list failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: out,
		Meta: httputil.NewListMeta(len(out), 1, len(out)),
	})
}

func (h *Handler) HandleLawByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, err := h.service.LawByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.logError(ctx, "law fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":             l.ID.String(),
		"code":           l.Code,
		"name":           l.Name,
		"jurisdiction":   l.Jurisdiction,
		"country":        l.Country,
		"effective_from": l.EffectiveFrom,
		"requirements":   l.Requirements,
		"special_rules":  l.SpecialRules,
	})
}

func (h *Handler) HandleRequirements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqs, err := h.service.ConsentRequirementsForCountry(ctx, r.URL.Query().Get("country"))
	if err != nil {
		h.logError(ctx, "requirement lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reqs)
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

// Package handler exposes the sanction endpoints. Moderation endpoints take
// operator identity from X-Operator-Id; the appeal endpoint takes the
// sanctioned subject from X-Subject-Id. The router installs both guards.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"girok/internal/platform/middleware"
	"girok/internal/sanction/models"
	"girok/internal/sanction/service"
	"girok/internal/sanction/store"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/httputil"
)

// Service is the slice of the sanction engine the handler depends on.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Sanction, error)
	Get(ctx context.Context, sanctionID id.SanctionID) (*models.Sanction, error)
	List(ctx context.Context, f store.Filter) ([]*models.Sanction, int, error)
	Revoke(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, reason string) (*models.Sanction, error)
	Extend(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, newEndAt time.Time, reason string) (*models.Sanction, error)
	Reduce(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, newEndAt time.Time, reason string) (*models.Sanction, error)
	SubmitAppeal(ctx context.Context, sanctionID id.SanctionID, subjectID id.AccountID, reason string) (*models.Sanction, error)
	ReviewAppeal(ctx context.Context, sanctionID id.SanctionID, reviewerID id.AccountID, decision models.AppealStatus, response string) (*models.Sanction, error)
	GetActive(ctx context.Context, subjectID id.AccountID, subjectType models.SubjectType, serviceID *id.ServiceID) (*models.ActiveSet, error)
}

// Handler wires sanction endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterOperator mounts the moderation endpoints. The router guards them
// with the operator-identity check.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/sanctions", h.HandleCreate)
	r.Get("/sanctions", h.HandleList)
	r.Get("/sanctions/{sanctionID}", h.HandleGet)
	r.Post("/sanctions/{sanctionID}/revoke", h.HandleRevoke)
	r.Post("/sanctions/{sanctionID}/extend", h.HandleExtend)
	r.Post("/sanctions/{sanctionID}/reduce", h.HandleReduce)
	r.Post("/sanctions/{sanctionID}/appeal/review", h.HandleReviewAppeal)
}

// RegisterSubject mounts the appeal endpoint. The router guards it with the
// subject-identity check.
func (h *Handler) RegisterSubject(r chi.Router) {
	r.Post("/sanctions/{sanctionID}/appeal", h.HandleSubmitAppeal)
}

// RegisterEnforcement mounts the active-set query consumed by services on
// their request paths. Guarded by the service-id check.
func (h *Handler) RegisterEnforcement(r chi.Router) {
	r.Get("/sanctions/active", h.HandleGetActive)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	svcReq, err := req.toService(middleware.GetOperatorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanc, err := h.service.Create(ctx, svcReq)
	if err != nil {
		h.logError(ctx, "sanction create failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSanction(sanc))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanctions, total, err := h.service.List(ctx, f)
	if err != nil {
		h.logError(ctx, "sanction list failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: FromSanctions(sanctions),
		Meta: httputil.NewListMeta(total, f.Page, f.Limit),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sanctionID, err := pathSanctionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanc, err := h.service.Get(ctx, sanctionID)
	if err != nil {
		h.logError(ctx, "sanction fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSanction(sanc))
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleAmend(w, r, "sanction revoke failed",
		func(ctx context.Context, sanctionID id.SanctionID, req AmendRequest) (*models.Sanction, error) {
			return h.service.Revoke(ctx, sanctionID, middleware.GetOperatorID(ctx), req.Reason)
		})
}

func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	h.handleAmend(w, r, "sanction extend failed",
		func(ctx context.Context, sanctionID id.SanctionID, req AmendRequest) (*models.Sanction, error) {
			if req.EndAt == nil {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "end_at is required")
			}
			return h.service.Extend(ctx, sanctionID, middleware.GetOperatorID(ctx), *req.EndAt, req.Reason)
		})
}

func (h *Handler) HandleReduce(w http.ResponseWriter, r *http.Request) {
	h.handleAmend(w, r, "sanction reduce failed",
		func(ctx context.Context, sanctionID id.SanctionID, req AmendRequest) (*models.Sanction, error) {
			if req.EndAt == nil {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "end_at is required")
			}
			return h.service.Reduce(ctx, sanctionID, middleware.GetOperatorID(ctx), *req.EndAt, req.Reason)
		})
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request, logMsg string, amend func(context.Context, id.SanctionID, AmendRequest) (*models.Sanction, error)) {
	ctx := r.Context()
	sanctionID, err := pathSanctionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[AmendRequest](w, r, h.logger)
	if !ok {
		return
	}
	sanc, err := amend(ctx, sanctionID, req)
	if err != nil {
		h.logError(ctx, logMsg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSanction(sanc))
}

func (h *Handler) HandleSubmitAppeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sanctionID, err := pathSanctionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[AppealRequest](w, r, h.logger)
	if !ok {
		return
	}
	sanc, err := h.service.SubmitAppeal(ctx, sanctionID, middleware.GetSubjectID(ctx), req.Reason)
	if err != nil {
		h.logError(ctx, "appeal submit failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSanction(sanc))
}

func (h *Handler) HandleReviewAppeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sanctionID, err := pathSanctionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[AppealReviewRequest](w, r, h.logger)
	if !ok {
		return
	}
	sanc, err := h.service.ReviewAppeal(ctx, sanctionID, middleware.GetOperatorID(ctx),
		models.AppealStatus(req.Decision), req.Response)
	if err != nil {
		h.logError(ctx, "appeal review failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSanction(sanc))
}

func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	subjectID, err := id.ParseAccountID(query.Get("subject_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_id"))
		return
	}
	subjectType, ok := models.ParseSubjectType(query.Get("subject_type"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_type"))
		return
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

	set, err := h.service.GetActive(ctx, subjectID, subjectType, serviceID)
	if err != nil {
		h.logError(ctx, "active sanction query failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromActiveSet(set))
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

func pathSanctionID(r *http.Request) (id.SanctionID, error) {
	sanctionID, err := id.ParseSanctionID(chi.URLParam(r, "sanctionID"))
	if err != nil {
		return id.SanctionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid sanction id")
	}
	return sanctionID, nil
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	query := r.URL.Query()
	var f store.Filter

	if raw := query.Get("subject_id"); raw != "" {
		subjectID, err := id.ParseAccountID(raw)
		if err != nil {
			return f, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_id")
		}
		f.SubjectID = subjectID
	}
	if raw := query.Get("subject_type"); raw != "" {
		subjectType, ok := models.ParseSubjectType(raw)
		if !ok {
			return f, dErrors.New(dErrors.CodeInvalidInput, "invalid subject_type")
		}
		f.SubjectType = subjectType
	}
	if raw := query.Get("status"); raw != "" {
		switch models.Status(raw) {
		case models.StatusActive, models.StatusExpired, models.StatusRevoked:
			f.Status = models.Status(raw)
		default:
			return f, dErrors.New(dErrors.CodeInvalidInput, "invalid status")
		}
	}
	if raw := query.Get("type"); raw != "" {
		sanctionType, ok := models.ParseType(raw)
		if !ok {
			return f, dErrors.New(dErrors.CodeInvalidInput, "invalid type")
		}
		f.Type = sanctionType
	}
	f.Page = intQuery(query.Get("page"), 1)
	f.Limit = intQuery(query.Get("limit"), 20)
	return f, nil
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

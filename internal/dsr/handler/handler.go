// Package handler exposes the DSR REST surface. Submission and cancellation
// are subject-facing; everything else sits behind the operator guard.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"girok/internal/dsr/models"
	"girok/internal/dsr/service"
	"girok/internal/dsr/store"
	"girok/internal/platform/middleware"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/httputil"
)

// Service is the slice of the DSR service the handler depends on.
type Service interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*models.Request, error)
	Verify(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, ip string) (*models.Request, error)
	Process(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, req service.ProcessRequest) (*models.Request, error)
	ExtendDeadline(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, req service.ExtendRequest) (*models.Request, error)
	Assign(ctx context.Context, requestID id.DSRID, operatorID, assigneeID id.AccountID, ip string) (*models.Request, error)
	Cancel(ctx context.Context, requestID id.DSRID, accountID id.AccountID, ip string) (*models.Request, error)
	Get(ctx context.Context, requestID id.DSRID) (*models.Request, error)
	List(ctx context.Context, f store.Filter) ([]*models.Request, int, error)
	Logs(ctx context.Context, requestID id.DSRID) ([]*models.RequestLog, error)
	Overdue(ctx context.Context) ([]*models.Request, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterSubject mounts the subject-facing routes behind the session guard.
func (h *Handler) RegisterSubject(r chi.Router) {
	r.Post("/dsr-requests", h.HandleSubmit)
	r.Delete("/dsr-requests/{requestID}", h.HandleCancel)
}

// RegisterOperator mounts the case-working routes behind the operator guard.
// The fixed paths precede the parameterized ones so chi does not swallow
// /statistics and /overdue as IDs.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Get("/dsr-requests", h.HandleList)
	r.Get("/dsr-requests/statistics", h.HandleStatistics)
	r.Get("/dsr-requests/overdue", h.HandleOverdue)
	r.Get("/dsr-requests/{requestID}", h.HandleGet)
	r.Get("/dsr-requests/{requestID}/logs", h.HandleLogs)
	r.Post("/dsr-requests/{requestID}/verify", h.HandleVerify)
	r.Post("/dsr-requests/{requestID}/process", h.HandleProcess)
	r.Post("/dsr-requests/{requestID}/extend-deadline", h.HandleExtendDeadline)
	r.Post("/dsr-requests/{requestID}/assign", h.HandleAssign)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}
	request, err := h.service.Submit(ctx, req.toService(middleware.GetAccountID(ctx), clientIP(r)))
	if err != nil {
		h.logError(ctx, "dsr submission failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(request))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	request, err := h.service.Cancel(ctx, requestID, middleware.GetAccountID(ctx), clientIP(r))
	if err != nil {
		h.logError(ctx, "dsr cancellation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	request, err := h.service.Get(ctx, requestID)
	if err != nil {
		h.logError(ctx, "dsr fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requests, total, err := h.service.List(ctx, filter)
	if err != nil {
		h.logError(ctx, "dsr list failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: FromRequests(requests),
		Meta: httputil.NewListMeta(total, filter.Page, filter.Limit),
	})
}

func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.Logs(ctx, requestID)
	if err != nil {
		h.logError(ctx, "dsr log fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]LogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, FromLog(log))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: out,
		Meta: httputil.NewListMeta(len(out), 1, len(out)),
	})
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	request, err := h.service.Verify(ctx, requestID, middleware.GetOperatorID(ctx), clientIP(r))
	if err != nil {
		h.logError(ctx, "dsr verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ProcessRequest](w, r, h.logger)
	if !ok {
		return
	}
	status, valid := models.ParseStatus(req.Status)
	if !valid {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid status"))
		return
	}
	request, err := h.service.Process(ctx, requestID, middleware.GetOperatorID(ctx), service.ProcessRequest{
		Status:       status,
		ResponseType: req.ResponseType,
		ResponseBody: req.ResponseBody,
		Note:         req.Note,
		IP:           clientIP(r),
	})
	if err != nil {
		h.logError(ctx, "dsr processing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleExtendDeadline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ExtendRequest](w, r, h.logger)
	if !ok {
		return
	}
	request, err := h.service.ExtendDeadline(ctx, requestID, middleware.GetOperatorID(ctx), service.ExtendRequest{
		ExtendedTo: req.ExtendedTo,
		Reason:     req.Reason,
		IP:         clientIP(r),
	})
	if err != nil {
		h.logError(ctx, "dsr deadline extension failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[AssignRequest](w, r, h.logger)
	if !ok {
		return
	}
	assigneeID, err := id.ParseAccountID(req.AssigneeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid assignee_id"))
		return
	}
	request, err := h.service.Assign(ctx, requestID, middleware.GetOperatorID(ctx), assigneeID, clientIP(r))
	if err != nil {
		h.logError(ctx, "dsr assignment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.service.Overdue(ctx)
	if err != nil {
		h.logError(ctx, "dsr overdue query failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := FromRequests(requests)
	httputil.WriteJSON(w, http.StatusOK, httputil.ListBody{
		Data: out,
		Meta: httputil.NewListMeta(len(out), 1, len(out)),
	})
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Statistics(ctx)
	if err != nil {
		h.logError(ctx, "dsr statistics failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	query := r.URL.Query()
	filter := store.Filter{
		Page:  intQuery(query.Get("page"), 1),
		Limit: intQuery(query.Get("limit"), 20),
	}
	if raw := query.Get("account_id"); raw != "" {
		accountID, err := id.ParseAccountID(raw)
		if err != nil {
			return store.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid account_id")
		}
		filter.AccountID = accountID
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return store.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid status")
		}
		filter.Status = status
	}
	if raw := query.Get("type"); raw != "" {
		requestType, ok := models.ParseType(raw)
		if !ok {
			return store.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "invalid type")
		}
		filter.Type = requestType
	}
	return filter, nil
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

func pathRequestID(w http.ResponseWriter, r *http.Request) (id.DSRID, bool) {
	requestID, err := id.ParseDSRID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request id"))
		return id.DSRID{}, false
	}
	return requestID, true
}

// clientIP prefers the edge-supplied header over the socket peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
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

package service

import (
	"context"
	"encoding/json"
	"time"

	"girok/internal/cache"
	"girok/internal/dsr/models"
	"girok/internal/dsr/store"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
)

// SubmitRequest carries one new data subject request.
type SubmitRequest struct {
	AccountID  id.AccountID
	Type       models.Type
	Scope      json.RawMessage
	LegalBasis string
	Priority   models.Priority
	IP         string
}

func (r SubmitRequest) validate() error {
	if r.AccountID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "account identity required")
	}
	if _, ok := models.ParseType(string(r.Type)); !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown request type")
	}
	if r.Priority != "" {
		if _, ok := models.ParsePriority(string(r.Priority)); !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown priority")
		}
	}
	return nil
}

// Submit opens a request in PENDING with the statutory deadline for its
// legal basis.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Request, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	request := &models.Request{
		ID:              id.DSRID(ident.NewUUIDv7()),
		AccountID:       req.AccountID,
		Type:            req.Type,
		Status:          models.StatusPending,
		Priority:        priority,
		Scope:           req.Scope,
		LegalBasis:      req.LegalBasis,
		Deadline:        now.AddDate(0, 0, models.DeadlineDays(req.LegalBasis)),
		EscalationLevel: models.EscalationNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, request); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist dsr request")
		}
		if err := s.appendLog(ctx, request.ID, actionSubmitted, nil, nil, req.IP); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr audit row")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateDSR, request.ID.String(),
			outbox.EventDSRSubmitted, payloadFor(request)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dsr request submitted",
		"request_id", request.ID, "account_id", request.AccountID,
		"type", request.Type, "deadline", request.Deadline)
	return request, nil
}

// Verify confirms the requester's identity and moves PENDING to VERIFIED.
func (s *Service) Verify(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, ip string) (*models.Request, error) {
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}
	return s.transition(ctx, requestID, models.StatusVerified, &operatorID,
		actionVerified, "", ip, nil)
}

// ProcessRequest moves a request along the working states.
type ProcessRequest struct {
	Status       models.Status
	ResponseType string
	ResponseBody string
	Note         string
	IP           string
}

// processTargets are the states Process may move a request into. The full
// table in models still applies on top.
var processTargets = map[models.Status]bool{
	models.StatusInProgress:   true,
	models.StatusAwaitingInfo: true,
	models.StatusCompleted:    true,
	models.StatusRejected:     true,
}

// Process advances a verified request. Completion and rejection record the
// response sent to the subject.
func (s *Service) Process(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, req ProcessRequest) (*models.Request, error) {
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}
	if !processTargets[req.Status] {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown target status")
	}
	return s.transition(ctx, requestID, req.Status, &operatorID,
		actionProcessed, req.Note, req.IP, func(r *models.Request) error {
			if req.ResponseType != "" {
				r.ResponseType = req.ResponseType
			}
			if req.ResponseBody != "" {
				r.ResponseBody = req.ResponseBody
			}
			if req.Note != "" {
				r.ResponseNote = req.Note
			}
			return nil
		})
}

// ExtendRequest carries one deadline extension.
type ExtendRequest struct {
	ExtendedTo time.Time
	Reason     string
	IP         string
}

// ExtendDeadline grants the single regulator-permitted extension. The
// extended deadline cannot exceed the original by more than one statutory
// window.
func (s *Service) ExtendDeadline(ctx context.Context, requestID id.DSRID, operatorID id.AccountID, req ExtendRequest) (*models.Request, error) {
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}
	if req.Reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extension reason is required")
	}
	request, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodePrecondition, "dsr request is in a terminal state")
	}
	if request.ExtendedTo != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "deadline already extended")
	}
	if !req.ExtendedTo.After(request.Deadline) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extended deadline must pass the current one")
	}
	limit := request.Deadline.AddDate(0, 0, models.DeadlineDays(request.LegalBasis))
	if req.ExtendedTo.After(limit) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extension exceeds the regulator-permitted window")
	}

	request.ExtendedTo = &req.ExtendedTo
	request.ExtensionReason = req.Reason
	request.UpdatedAt = s.now()
	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, request); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist dsr request")
		}
		details := map[string]any{"extended_to": req.ExtendedTo, "reason": req.Reason}
		if err := s.appendLog(ctx, request.ID, actionDeadlineExtended, &operatorID, details, req.IP); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr audit row")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateDSR, request.ID.String(),
			outbox.EventDSRStatusChanged, payloadFor(request)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, request.ID)
	s.logger.InfoContext(ctx, "dsr deadline extended",
		"request_id", request.ID, "extended_to", req.ExtendedTo)
	return request, nil
}

// Assign routes a request to an operator worklist.
func (s *Service) Assign(ctx context.Context, requestID id.DSRID, operatorID, assigneeID id.AccountID, ip string) (*models.Request, error) {
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}
	if assigneeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "assignee_id is required")
	}
	request, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodePrecondition, "dsr request is in a terminal state")
	}

	request.AssigneeID = &assigneeID
	request.UpdatedAt = s.now()
	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, request); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist dsr request")
		}
		details := map[string]any{"assignee_id": assigneeID.String()}
		return s.appendLog(ctx, request.ID, actionAssigned, &operatorID, details, ip)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, request.ID)
	return request, nil
}

// Cancel lets the subject withdraw their own request. Only PENDING and
// AWAITING_INFO admit cancellation.
func (s *Service) Cancel(ctx context.Context, requestID id.DSRID, accountID id.AccountID, ip string) (*models.Request, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account identity required")
	}
	request, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.AccountID != accountID {
		return nil, dErrors.New(dErrors.CodeForbidden, "dsr request belongs to another account")
	}
	return s.transition(ctx, requestID, models.StatusCancelled, nil,
		actionCancelled, "", ip, nil)
}

// Get returns one request, cached with TTLUserData.
func (s *Service) Get(ctx context.Context, requestID id.DSRID) (*models.Request, error) {
	raw, err := s.cache.GetOrCompute(ctx, s.keys.DSRByID(requestID.String()), cache.TTLUserData,
		func(ctx context.Context) ([]byte, error) {
			request, err := s.findRequest(ctx, requestID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(request)
		})
	if err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load dsr request")
	}
	var request models.Request
	if err := json.Unmarshal(raw, &request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode cached dsr request")
	}
	return &request, nil
}

// List returns a page of requests plus the unpaged total.
func (s *Service) List(ctx context.Context, f store.Filter) ([]*models.Request, int, error) {
	requests, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "list dsr requests")
	}
	return requests, total, nil
}

// Logs returns the audit trail of one request.
func (s *Service) Logs(ctx context.Context, requestID id.DSRID) ([]*models.RequestLog, error) {
	if _, err := s.findRequest(ctx, requestID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListLogs(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list dsr logs")
	}
	return logs, nil
}

// Overdue returns open requests past their effective deadline.
func (s *Service) Overdue(ctx context.Context) ([]*models.Request, error) {
	requests, err := s.store.ListOverdue(ctx, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list overdue dsr requests")
	}
	return requests, nil
}

// Statistics returns the observational summary.
func (s *Service) Statistics(ctx context.Context) (*models.Statistics, error) {
	stats, err := s.store.Statistics(ctx, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "dsr statistics")
	}
	return stats, nil
}

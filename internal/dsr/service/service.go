// Package service implements the DSR engine: the request state machine,
// statutory deadline computation, the hourly escalation sweep, and the daily
// summary.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"girok/internal/cache"
	"girok/internal/dsr/models"
	"girok/internal/dsr/store"
	"girok/internal/outbox"
	"girok/internal/platform/metrics"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/sentinel"
	"girok/pkg/platform/tx"
)

// Store is the persistence contract the engine needs.
type Store interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.DSRID) (*models.Request, error)
	Update(ctx context.Context, req *models.Request) error
	List(ctx context.Context, f store.Filter) ([]*models.Request, int, error)
	ListOpen(ctx context.Context) ([]*models.Request, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*models.Request, error)
	Statistics(ctx context.Context, now time.Time) (*models.Statistics, error)
	AppendLog(ctx context.Context, log *models.RequestLog) error
	ListLogs(ctx context.Context, requestID id.DSRID) ([]*models.RequestLog, error)
}

// Outbox appends event rows inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Audit log action names. Stable identifiers; the log is append-only.
const (
	actionSubmitted        = "SUBMITTED"
	actionVerified         = "VERIFIED"
	actionProcessed        = "PROCESSED"
	actionDeadlineExtended = "DEADLINE_EXTENDED"
	actionAssigned         = "ASSIGNED"
	actionCancelled        = "CANCELLED"
	actionEscalated        = "ESCALATED"
)

// Service drives DSR request state. Every transition commits its audit row
// and outbox event in the same transaction as the row update.
type Service struct {
	store   Store
	outbox  Outbox
	runner  tx.Runner
	cache   cache.Cache
	keys    cache.Keys
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(st Store, ob Outbox, runner tx.Runner, c cache.Cache, keys cache.Keys, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		outbox:  ob,
		runner:  runner,
		cache:   c,
		keys:    keys,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// eventPayload is the outbox body shared by all DSR events.
type eventPayload struct {
	RequestID       string     `json:"request_id"`
	AccountID       string     `json:"account_id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	LegalBasis      string     `json:"legal_basis"`
	Deadline        time.Time  `json:"deadline"`
	ExtendedTo      *time.Time `json:"extended_to,omitempty"`
	EscalationLevel string     `json:"escalation_level"`
}

func payloadFor(req *models.Request) eventPayload {
	return eventPayload{
		RequestID:       req.ID.String(),
		AccountID:       req.AccountID.String(),
		Type:            string(req.Type),
		Status:          string(req.Status),
		LegalBasis:      req.LegalBasis,
		Deadline:        req.Deadline,
		ExtendedTo:      req.ExtendedTo,
		EscalationLevel: string(req.EscalationLevel),
	}
}

// appendLog writes one audit row inside the current transaction.
func (s *Service) appendLog(ctx context.Context, requestID id.DSRID, action string, operatorID *id.AccountID, details any, ip string) error {
	var body json.RawMessage
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal audit details")
		}
		body = raw
	}
	return s.store.AppendLog(ctx, &models.RequestLog{
		ID:         uuid.New(),
		RequestID:  requestID,
		Action:     action,
		OperatorID: operatorID,
		Details:    body,
		IP:         ip,
		CreatedAt:  s.now(),
	})
}

func (s *Service) findRequest(ctx context.Context, requestID id.DSRID) (*models.Request, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "dsr request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load dsr request")
	}
	return req, nil
}

// invalidate drops the cached request. Best effort; a stale entry ages out
// with TTLUserData.
func (s *Service) invalidate(ctx context.Context, requestID id.DSRID) {
	if err := s.cache.Delete(ctx, s.keys.DSRByID(requestID.String())); err != nil {
		s.logger.WarnContext(ctx, "dsr cache invalidation failed",
			"request_id", requestID, "error", err)
	}
}

// statusChange is the audit detail body for transitions.
type statusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
	Note string `json:"note,omitempty"`
}

// transition moves one request to a new status, with the row update, audit
// row, and outbox event in a single transaction.
func (s *Service) transition(ctx context.Context, requestID id.DSRID, to models.Status, operatorID *id.AccountID, action, note, ip string, apply func(*models.Request) error) (*models.Request, error) {
	req, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodePrecondition, "dsr request is in a terminal state")
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, dErrors.New(dErrors.CodePrecondition,
			"cannot move from "+string(req.Status)+" to "+string(to))
	}
	from := req.Status
	if apply != nil {
		if err := apply(req); err != nil {
			return nil, err
		}
	}
	req.Status = to
	req.UpdatedAt = s.now()

	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist dsr request")
		}
		details := statusChange{From: string(from), To: string(to), Note: note}
		if err := s.appendLog(ctx, req.ID, action, operatorID, details, ip); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr audit row")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateDSR, req.ID.String(),
			outbox.EventDSRStatusChanged, payloadFor(req)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append dsr event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, req.ID)
	s.logger.InfoContext(ctx, "dsr request transitioned",
		"request_id", req.ID, "from", from, "to", to)
	return req, nil
}

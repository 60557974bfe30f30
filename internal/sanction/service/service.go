// Package service implements the sanction engine: the sanction lifecycle,
// the embedded appeal flow, the active-set query, and the expiration sweep.
package service

import (
	"context"
	"log/slog"
	"time"

	"girok/internal/cache"
	"girok/internal/platform/metrics"
	"girok/internal/sanction/models"
	"girok/internal/sanction/store"
	id "girok/pkg/domain"
	"girok/pkg/platform/tx"
)

// Store is the persistence contract the engine needs.
type Store interface {
	Create(ctx context.Context, sanc *models.Sanction) error
	FindByID(ctx context.Context, sanctionID id.SanctionID) (*models.Sanction, error)
	Update(ctx context.Context, sanc *models.Sanction) error
	List(ctx context.Context, f store.Filter) ([]*models.Sanction, int, error)
	FindActiveBySubject(ctx context.Context, subjectID id.AccountID, subjectType models.SubjectType, now time.Time) ([]*models.Sanction, error)
	ExpireDue(ctx context.Context, now time.Time) ([]id.AccountID, error)
}

// Outbox appends event rows inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Service drives sanction state. All writes commit their outbox row in the
// same transaction; the active-set cache is dropped after every mutation.
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

func New(store Store, outbox Outbox, runner tx.Runner, c cache.Cache, keys cache.Keys, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		outbox:  outbox,
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

// eventPayload is the outbox body shared by all sanction events.
type eventPayload struct {
	SanctionID   string     `json:"sanction_id"`
	SubjectID    string     `json:"subject_id"`
	SubjectType  string     `json:"subject_type"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	AppealStatus string     `json:"appeal_status,omitempty"`
	ActorID      string     `json:"actor_id"`
	Reason       string     `json:"reason,omitempty"`
	EndAt        *time.Time `json:"end_at,omitempty"`
}

func payloadFor(sanc *models.Sanction, actorID id.AccountID, reason string) eventPayload {
	return eventPayload{
		SanctionID:   sanc.ID.String(),
		SubjectID:    sanc.SubjectID.String(),
		SubjectType:  string(sanc.SubjectType),
		Type:         string(sanc.Type),
		Status:       string(sanc.Status),
		AppealStatus: string(sanc.AppealStatus),
		ActorID:      actorID.String(),
		Reason:       reason,
		EndAt:        sanc.EndAt,
	}
}

// invalidateActive drops the cached active set for a subject. Best effort:
// a failed delete leaves a stale entry that ages out with TTLUserData.
func (s *Service) invalidateActive(ctx context.Context, subjectID id.AccountID) {
	if err := s.cache.Delete(ctx, s.keys.ActiveSanctions(subjectID.String())); err != nil {
		s.logger.WarnContext(ctx, "active sanction cache invalidation failed",
			"subject_id", subjectID, "error", err)
	}
}

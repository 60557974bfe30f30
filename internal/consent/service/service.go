// Package service implements the consent store: grant and withdraw flows and
// the daily expiration sweep.
package service

import (
	"context"
	"log/slog"
	"time"

	"girok/internal/cache"
	"girok/internal/consent/models"
	legal "girok/internal/legal/models"
	"girok/internal/platform/metrics"
	id "girok/pkg/domain"
	"girok/pkg/platform/tx"
)

// Store is the persistence contract the consent flows need.
type Store interface {
	Create(ctx context.Context, c *models.Consent) error
	FindByID(ctx context.Context, consentID id.ConsentID) (*models.Consent, error)
	FindGranted(ctx context.Context, accountID id.AccountID, documentID id.DocumentID) (*models.Consent, error)
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Consent, error)
	Update(ctx context.Context, c *models.Consent) error
	ListExpiringWithin(ctx context.Context, now, until time.Time) ([]*models.Consent, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Consent, error)
}

// Documents resolves the document a consent targets. Backed by the legal
// service.
type Documents interface {
	Get(ctx context.Context, documentID id.DocumentID) (*legal.Document, error)
}

// Outbox appends event rows inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Service drives consent state. Every transition commits its outbox row in
// the same transaction; the status cache is dropped after every mutation.
type Service struct {
	store     Store
	documents Documents
	outbox    Outbox
	runner    tx.Runner
	cache     cache.Cache
	keys      cache.Keys
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, documents Documents, outbox Outbox, runner tx.Runner, c cache.Cache, keys cache.Keys, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		documents: documents,
		outbox:    outbox,
		runner:    runner,
		cache:     c,
		keys:      keys,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// eventPayload is the outbox body shared by all consent events.
type eventPayload struct {
	ConsentID       string     `json:"consent_id"`
	AccountID       string     `json:"account_id"`
	DocumentID      string     `json:"document_id"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysUntilExpiry int        `json:"daysUntilExpiry,omitempty"`
}

func payloadFor(c *models.Consent) eventPayload {
	return eventPayload{
		ConsentID:  c.ID.String(),
		AccountID:  c.AccountID.String(),
		DocumentID: c.DocumentID.String(),
		Status:     string(c.Status),
		ExpiresAt:  c.ExpiresAt,
	}
}

// invalidateStatus drops the cached status for (account, document). Best
// effort; a stale entry ages out with TTLUserData.
func (s *Service) invalidateStatus(ctx context.Context, accountID id.AccountID, documentID id.DocumentID) {
	if err := s.cache.Delete(ctx, s.keys.ConsentStatus(accountID.String(), documentID.String())); err != nil {
		s.logger.WarnContext(ctx, "consent status cache invalidation failed",
			"account_id", accountID, "document_id", documentID, "error", err)
	}
}

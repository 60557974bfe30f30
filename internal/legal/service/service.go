// Package service implements the legal registry: versioned document
// resolution with locale and scope fallback, and the law registry that turns
// a country code into consent requirements.
package service

import (
	"context"
	"log/slog"
	"time"

	"girok/internal/cache"
	"girok/internal/legal/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/tx"
)

// DocumentStore is the document persistence contract.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	DeactivatePriors(ctx context.Context, docType models.DocumentType, locale string) error
	FindLatest(ctx context.Context, docType models.DocumentType, locale string, country *string, serviceID *id.ServiceID, now time.Time) (*models.Document, error)
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	ListVersions(ctx context.Context, docType models.DocumentType, locale string) ([]*models.Document, error)
}

// LawStore is the law registry persistence contract.
type LawStore interface {
	Create(ctx context.Context, l *models.Law) error
	FindByCode(ctx context.Context, code string) (*models.Law, error)
	ListActiveByCountry(ctx context.Context, country string, now time.Time) ([]*models.Law, error)
}

// Service answers document and law queries. Document resolution is cached
// with TTLSemiStatic, laws with TTLStaticConfig.
type Service struct {
	documents DocumentStore
	laws      LawStore
	runner    tx.Runner
	cache     cache.Cache
	keys      cache.Keys
	logger    *slog.Logger
	now       func() time.Time
}

func New(documents DocumentStore, laws LawStore, runner tx.Runner, c cache.Cache, keys cache.Keys, logger *slog.Logger) *Service {
	return &Service{
		documents: documents,
		laws:      laws,
		runner:    runner,
		cache:     c,
		keys:      keys,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

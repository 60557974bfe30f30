package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"girok/internal/cache"
	"girok/internal/legal/models"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

// CreateVersionRequest carries one new document version.
type CreateVersionRequest struct {
	Type          models.DocumentType
	Version       string
	Locale        string
	ServiceID     *id.ServiceID
	Country       *string
	Title         string
	Body          string
	Summary       string
	EffectiveDate time.Time
	ExpiresAt     *time.Time
}

func (r CreateVersionRequest) validate() error {
	if _, ok := models.ParseDocumentType(string(r.Type)); !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown document type")
	}
	if r.Version == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "version is required")
	}
	if r.Locale == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "locale is required")
	}
	if r.Title == "" || r.Body == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title and body are required")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.EffectiveDate) {
		return dErrors.New(dErrors.CodeInvalidInput, "expires_at precedes effective_date")
	}
	return nil
}

// CreateVersion performs the version cut: all prior documents of the same
// (type, locale) are deactivated and the new version inserted in one
// SERIALIZABLE transaction, so a concurrent reader sees exactly one latest.
func (s *Service) CreateVersion(ctx context.Context, req CreateVersionRequest) (*models.Document, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	effective := req.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	doc := &models.Document{
		ID:            id.DocumentID(ident.NewUUIDv7()),
		Type:          req.Type,
		Version:       req.Version,
		Locale:        req.Locale,
		ServiceID:     req.ServiceID,
		Country:       req.Country,
		Title:         req.Title,
		Body:          req.Body,
		Summary:       req.Summary,
		EffectiveDate: effective,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.runner.WithinSerializable(ctx, func(ctx context.Context) error {
		if err := s.documents.DeactivatePriors(ctx, req.Type, req.Locale); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "deactivate prior versions")
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "document version already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist document")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The resolver cache may hold the displaced latest for any locale of
	// this type. Invalidation must not block the request.
	go func() {
		ctx := context.WithoutCancel(ctx)
		if _, err := s.cache.InvalidatePattern(ctx, s.keys.DocumentPattern(string(req.Type))); err != nil {
			s.logger.WarnContext(ctx, "document cache invalidation failed",
				"type", req.Type, "error", err)
		}
	}()

	s.logger.InfoContext(ctx, "document version cut",
		"document_id", doc.ID, "type", doc.Type, "locale", doc.Locale, "version", doc.Version)
	return doc, nil
}

// Latest resolves the current document. Fallback when the exact scope has
// nothing: retry with locale "en", then retry with country and service
// dropped. Not found after the chain is a hard error.
func (s *Service) Latest(ctx context.Context, docType models.DocumentType, locale string, country *string, serviceID *id.ServiceID) (*models.Document, error) {
	if locale == "" {
		locale = "en"
	}

	// Unscoped lookups dominate and are safe to share; scoped ones are rare
	// and go straight to the store.
	if country == nil && serviceID == nil {
		return s.latestCached(ctx, docType, locale)
	}

	now := s.now()
	doc, err := s.documents.FindLatest(ctx, docType, locale, country, serviceID, now)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
	}
	if locale != "en" {
		if doc, err := s.documents.FindLatest(ctx, docType, "en", country, serviceID, now); err == nil {
			return doc, nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
		}
	}
	return s.latestCached(ctx, docType, locale)
}

func (s *Service) latestCached(ctx context.Context, docType models.DocumentType, locale string) (*models.Document, error) {
	raw, err := s.cache.GetOrCompute(ctx, s.keys.LatestDocument(string(docType), locale), cache.TTLSemiStatic,
		func(ctx context.Context) ([]byte, error) {
			doc, err := s.latestUncached(ctx, docType, locale)
			if err != nil {
				return nil, err
			}
			return json.Marshal(doc)
		})
	if err != nil {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode cached document")
	}
	return &doc, nil
}

// latestUncached applies the locale fallback for unscoped resolution.
func (s *Service) latestUncached(ctx context.Context, docType models.DocumentType, locale string) (*models.Document, error) {
	now := s.now()
	doc, err := s.documents.FindLatest(ctx, docType, locale, nil, nil, now)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
	}
	if locale != "en" {
		doc, err = s.documents.FindLatest(ctx, docType, "en", nil, nil, now)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no document for type and locale")
}

// Get returns one document version by ID.
func (s *Service) Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	return doc, nil
}

// ListVersions returns the version history of (type, locale).
func (s *Service) ListVersions(ctx context.Context, docType models.DocumentType, locale string) ([]*models.Document, error) {
	docs, err := s.documents.ListVersions(ctx, docType, locale)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list document versions")
	}
	return docs, nil
}

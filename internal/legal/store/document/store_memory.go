package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"girok/internal/legal/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory document store used by unit tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *MemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.docs {
		if existing.Type == doc.Type && existing.Version == doc.Version &&
			existing.Locale == doc.Locale &&
			equalStringPtr(existing.Country, doc.Country) &&
			equalServicePtr(existing.ServiceID, doc.ServiceID) {
			return fmt.Errorf("create document: %w", sentinel.ErrConflict)
		}
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *MemoryStore) DeactivatePriors(_ context.Context, docType models.DocumentType, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.Type == docType && doc.Locale == locale {
			doc.IsActive = false
		}
	}
	return nil
}

func (s *MemoryStore) FindLatest(_ context.Context, docType models.DocumentType, locale string, country *string, serviceID *id.ServiceID, now time.Time) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Document
	for _, doc := range s.docs {
		if doc.Type != docType || doc.Locale != locale || !doc.ResolvableAt(now) {
			continue
		}
		if !equalStringPtr(doc.Country, country) || !equalServicePtr(doc.ServiceID, serviceID) {
			continue
		}
		if latest == nil || doc.EffectiveDate.After(latest.EffectiveDate) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("find document: %w", sentinel.ErrNotFound)
	}
	return cloneDocument(latest), nil
}

func (s *MemoryStore) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("find document: %w", sentinel.ErrNotFound)
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) ListVersions(_ context.Context, docType models.DocumentType, locale string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.Type == docType && doc.Locale == locale {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveDate.After(out[j].EffectiveDate)
	})
	return out, nil
}

func cloneDocument(doc *models.Document) *models.Document {
	clone := *doc
	if doc.ServiceID != nil {
		serviceID := *doc.ServiceID
		clone.ServiceID = &serviceID
	}
	if doc.Country != nil {
		country := *doc.Country
		clone.Country = &country
	}
	if doc.ExpiresAt != nil {
		expiresAt := *doc.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}
	return &clone
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalServicePtr(a, b *id.ServiceID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

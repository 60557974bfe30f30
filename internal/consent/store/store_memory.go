package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"girok/internal/consent/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory consent store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	consents map[id.ConsentID]*models.Consent
}

func NewMemory() *MemoryStore {
	return &MemoryStore{consents: make(map[id.ConsentID]*models.Consent)}
}

func (s *MemoryStore) Create(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status == models.StatusGranted {
		for _, existing := range s.consents {
			if existing.AccountID == c.AccountID && existing.DocumentID == c.DocumentID &&
				existing.Status == models.StatusGranted {
				return fmt.Errorf("create consent: %w", sentinel.ErrConflict)
			}
		}
	}
	s.consents[c.ID] = cloneConsent(c)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[consentID]
	if !ok {
		return nil, fmt.Errorf("find consent: %w", sentinel.ErrNotFound)
	}
	return cloneConsent(c), nil
}

func (s *MemoryStore) FindGranted(_ context.Context, accountID id.AccountID, documentID id.DocumentID) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.consents {
		if c.AccountID == accountID && c.DocumentID == documentID && c.Status == models.StatusGranted {
			return cloneConsent(c), nil
		}
	}
	return nil, fmt.Errorf("find consent: %w", sentinel.ErrNotFound)
}

func (s *MemoryStore) ListByAccount(_ context.Context, accountID id.AccountID) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Consent
	for _, c := range s.consents {
		if c.AccountID == accountID {
			out = append(out, cloneConsent(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[c.ID]; !ok {
		return fmt.Errorf("update consent: %w", sentinel.ErrNotFound)
	}
	s.consents[c.ID] = cloneConsent(c)
	return nil
}

func (s *MemoryStore) ListExpiringWithin(_ context.Context, now, until time.Time) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Consent
	for _, c := range s.consents {
		if c.Status != models.StatusGranted || c.ExpiresAt == nil {
			continue
		}
		if c.ExpiresAt.After(now) && !c.ExpiresAt.After(until) {
			out = append(out, cloneConsent(c))
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Consent
	for _, c := range s.consents {
		if c.Status != models.StatusGranted || c.ExpiresAt == nil {
			continue
		}
		if !c.ExpiresAt.After(now) {
			out = append(out, cloneConsent(c))
		}
	}
	sortByExpiry(out)
	return out, nil
}

func sortByExpiry(consents []*models.Consent) {
	sort.Slice(consents, func(i, j int) bool {
		return consents[i].ExpiresAt.Before(*consents[j].ExpiresAt)
	})
}

func cloneConsent(c *models.Consent) *models.Consent {
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.WithdrawnAt != nil {
		t := *c.WithdrawnAt
		out.WithdrawnAt = &t
	}
	return &out
}

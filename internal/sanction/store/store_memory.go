package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"girok/internal/sanction/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory sanction store used by unit tests.
type MemoryStore struct {
	mu        sync.RWMutex
	sanctions map[id.SanctionID]*models.Sanction
}

func NewMemory() *MemoryStore {
	return &MemoryStore{sanctions: make(map[id.SanctionID]*models.Sanction)}
}

func (s *MemoryStore) Create(_ context.Context, sanc *models.Sanction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sanctions[sanc.ID]; ok {
		return fmt.Errorf("create sanction: %w", sentinel.ErrConflict)
	}
	s.sanctions[sanc.ID] = cloneSanction(sanc)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, sanctionID id.SanctionID) (*models.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sanc, ok := s.sanctions[sanctionID]
	if !ok {
		return nil, fmt.Errorf("find sanction: %w", sentinel.ErrNotFound)
	}
	return cloneSanction(sanc), nil
}

func (s *MemoryStore) Update(_ context.Context, sanc *models.Sanction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sanctions[sanc.ID]; !ok {
		return fmt.Errorf("update sanction: %w", sentinel.ErrNotFound)
	}
	updated := cloneSanction(sanc)
	updated.UpdatedAt = time.Now().UTC()
	s.sanctions[sanc.ID] = updated
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*models.Sanction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Sanction
	for _, sanc := range s.sanctions {
		if !f.SubjectID.IsNil() && sanc.SubjectID != f.SubjectID {
			continue
		}
		if f.SubjectType != "" && sanc.SubjectType != f.SubjectType {
			continue
		}
		if f.Status != "" && sanc.Status != f.Status {
			continue
		}
		if f.Type != "" && sanc.Type != f.Type {
			continue
		}
		matched = append(matched, cloneSanction(sanc))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) FindActiveBySubject(_ context.Context, subjectID id.AccountID, subjectType models.SubjectType, now time.Time) ([]*models.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Sanction
	for _, sanc := range s.sanctions {
		if sanc.SubjectID != subjectID || sanc.SubjectType != subjectType {
			continue
		}
		if sanc.Status != models.StatusActive || !sanc.ActiveAt(now) {
			continue
		}
		out = append(out, cloneSanction(sanc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) ([]id.AccountID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subjects []id.AccountID
	for _, sanc := range s.sanctions {
		if sanc.Status == models.StatusActive && sanc.EndAt != nil && !sanc.EndAt.After(now) {
			sanc.Status = models.StatusExpired
			sanc.UpdatedAt = now
			subjects = append(subjects, sanc.SubjectID)
		}
	}
	return subjects, nil
}

func cloneSanction(sanc *models.Sanction) *models.Sanction {
	clone := *sanc
	clone.RestrictedFeatures = append([]string(nil), sanc.RestrictedFeatures...)
	clone.EvidenceURLs = append([]string(nil), sanc.EvidenceURLs...)
	if sanc.ServiceID != nil {
		serviceID := *sanc.ServiceID
		clone.ServiceID = &serviceID
	}
	if sanc.EndAt != nil {
		endAt := *sanc.EndAt
		clone.EndAt = &endAt
	}
	if sanc.AppealedAt != nil {
		appealedAt := *sanc.AppealedAt
		clone.AppealedAt = &appealedAt
	}
	if sanc.ReviewerID != nil {
		reviewerID := *sanc.ReviewerID
		clone.ReviewerID = &reviewerID
	}
	if sanc.ReviewedAt != nil {
		reviewedAt := *sanc.ReviewedAt
		clone.ReviewedAt = &reviewedAt
	}
	return &clone
}

package law

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"girok/internal/legal/models"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory law store used by unit tests.
type MemoryStore struct {
	mu   sync.RWMutex
	laws map[string]*models.Law
}

func NewMemory() *MemoryStore {
	return &MemoryStore{laws: make(map[string]*models.Law)}
}

func (s *MemoryStore) Create(_ context.Context, l *models.Law) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.laws[l.Code]; ok {
		return fmt.Errorf("create law: %w", sentinel.ErrConflict)
	}
	s.laws[l.Code] = cloneLaw(l)
	return nil
}

func (s *MemoryStore) FindByCode(_ context.Context, code string) (*models.Law, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.laws[code]
	if !ok {
		return nil, fmt.Errorf("find law: %w", sentinel.ErrNotFound)
	}
	return cloneLaw(l), nil
}

func (s *MemoryStore) ListActiveByCountry(_ context.Context, country string, now time.Time) ([]*models.Law, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Law
	for _, l := range s.laws {
		if l.Country != nil && *l.Country == country && l.ActiveAt(now) {
			out = append(out, cloneLaw(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func cloneLaw(l *models.Law) *models.Law {
	clone := *l
	if l.Country != nil {
		country := *l.Country
		clone.Country = &country
	}
	clone.Requirements.Required = append([]models.DocumentType(nil), l.Requirements.Required...)
	clone.Requirements.Optional = append([]models.DocumentType(nil), l.Requirements.Optional...)
	return &clone
}

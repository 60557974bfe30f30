package registry

import (
	"context"
	"sync"

	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory service registry used by unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[id.ServiceID]*Service
}

func NewMemory(services ...*Service) *MemoryStore {
	s := &MemoryStore{services: make(map[id.ServiceID]*Service)}
	for _, svc := range services {
		clone := *svc
		s.services[svc.ID] = &clone
	}
	return s
}

func (s *MemoryStore) FindService(ctx context.Context, serviceID id.ServiceID) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *svc
	return &clone, nil
}

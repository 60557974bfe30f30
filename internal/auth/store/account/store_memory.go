package account

import (
	"context"
	"strings"
	"sync"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory account store used by unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[id.AccountID]*models.Account
	byEmail     map[string]id.AccountID
	credentials map[id.AccountID]*models.Credential
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[id.AccountID]*models.Account),
		byEmail:     make(map[string]id.AccountID),
		credentials: make(map[id.AccountID]*models.Credential),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(a.Email)
	if _, exists := s.byEmail[email]; exists {
		return sentinel.ErrConflict
	}
	clone := *a
	clone.Email = email
	s.byID[a.ID] = &clone
	s.byEmail[email] = a.ID
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accountID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[accountID]
	return &clone, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *a
	clone.Email = strings.ToLower(a.Email)
	s.byID[a.ID] = &clone
	return nil
}

func (s *MemoryStore) SaveCredential(ctx context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.credentials[c.AccountID] = &clone
	return nil
}

func (s *MemoryStore) FindCredential(ctx context.Context, accountID id.AccountID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

package mfa

import (
	"context"
	"sync"
	"time"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory MFA store used by unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[id.AccountID]*models.MFASecret
}

func NewMemory() *MemoryStore {
	return &MemoryStore{secrets: make(map[id.AccountID]*models.MFASecret)}
}

func (s *MemoryStore) Save(ctx context.Context, m *models.MFASecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	clone.BackupCodeHashes = append([]string(nil), m.BackupCodeHashes...)
	clone.UpdatedAt = time.Now()
	s.secrets[m.AccountID] = &clone
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, accountID id.AccountID) (*models.MFASecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.secrets[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *m
	clone.BackupCodeHashes = append([]string(nil), m.BackupCodeHashes...)
	return &clone, nil
}

func (s *MemoryStore) Delete(ctx context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, accountID)
	return nil
}

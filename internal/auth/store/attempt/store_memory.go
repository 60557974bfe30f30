package attempt

import (
	"context"
	"strings"
	"sync"
	"time"

	"girok/internal/auth/models"
)

// MemoryStore is the in-memory attempt store used by unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts []models.LoginAttempt
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, a *models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *a
	clone.EmailEntered = strings.ToLower(a.EmailEntered)
	s.attempts = append(s.attempts, clone)
	return nil
}

func (s *MemoryStore) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	count := 0
	for _, a := range s.attempts {
		if a.EmailEntered == email && !a.Success && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// All returns a copy of the recorded attempts, oldest first. Test helper.
func (s *MemoryStore) All() []models.LoginAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LoginAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

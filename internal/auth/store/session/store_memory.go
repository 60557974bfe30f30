package session

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// MemoryStore is the in-memory session store used by unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *MemoryStore) Create(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *MemoryStore) FindByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == hash {
			clone := *sess
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) TouchActivity(ctx context.Context, sessionID id.SessionID, minAge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		interval, err := time.ParseDuration(minAge)
		if err != nil {
			// Postgres interval strings like "60 seconds" are not Go
			// durations; approximate with a minute for tests.
			interval = time.Minute
		}
		if time.Since(sess.LastActivityAt) >= interval {
			sess.LastActivityAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) RotateRefreshHash(ctx context.Context, sessionID id.SessionID, newHash string, expiresAt sql.NullTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	sess.RefreshTokenHash = newHash
	if expiresAt.Valid {
		sess.ExpiresAt = expiresAt.Time
	}
	sess.LastActivityAt = time.Now()
	return nil
}

func (s *MemoryStore) SetMFAVerified(ctx context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	sess.MFAVerified = true
	return nil
}

func (s *MemoryStore) Revoke(ctx context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.AccountID == accountID {
			clone := *sess
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RevokeAllExcept(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for sid, sess := range s.sessions {
		if sess.AccountID == accountID && sid != current {
			delete(s.sessions, sid)
			revoked++
		}
	}
	return revoked, nil
}

package session

import (
	"context"
	"database/sql"
	"encoding/json"

	"girok/internal/auth/models"
	"girok/internal/cache"
	id "girok/pkg/domain"
)

// store is the surface CachedStore decorates.
type store interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*models.Session, error)
	TouchActivity(ctx context.Context, sessionID id.SessionID, minAge string) error
	RotateRefreshHash(ctx context.Context, sessionID id.SessionID, newHash string, expiresAt sql.NullTime) error
	SetMFAVerified(ctx context.Context, sessionID id.SessionID) error
	Revoke(ctx context.Context, sessionID id.SessionID) error
	RevokeAllExcept(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error)
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Session, error)
}

// CachedStore fronts a session store with the shared cache. FindByID is the
// per-request hot read; everything that changes a session's auth posture
// drops the cached copy so revocation and MFA promotion take effect on the
// next request.
type CachedStore struct {
	inner store
	cache cache.Cache
	keys  cache.Keys
}

func NewCached(inner store, c cache.Cache, keys cache.Keys) *CachedStore {
	return &CachedStore{inner: inner, cache: c, keys: keys}
}

func (s *CachedStore) Create(ctx context.Context, sess *models.Session) error {
	return s.inner.Create(ctx, sess)
}

func (s *CachedStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	key := s.keys.SessionByToken(sessionID.String())
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var sess models.Session
		if err := json.Unmarshal(raw, &sess); err == nil {
			return &sess, nil
		}
	}
	sess, err := s.inner.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(sess); err == nil {
		_ = s.cache.Set(ctx, key, raw, cache.TTLSession)
	}
	return sess, nil
}

func (s *CachedStore) FindByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	return s.inner.FindByRefreshHash(ctx, hash)
}

// TouchActivity does not invalidate: a stale last-activity timestamp in the
// cache is harmless and the slide guard already bounds the write rate.
func (s *CachedStore) TouchActivity(ctx context.Context, sessionID id.SessionID, minAge string) error {
	return s.inner.TouchActivity(ctx, sessionID, minAge)
}

func (s *CachedStore) RotateRefreshHash(ctx context.Context, sessionID id.SessionID, newHash string, expiresAt sql.NullTime) error {
	if err := s.inner.RotateRefreshHash(ctx, sessionID, newHash, expiresAt); err != nil {
		return err
	}
	s.drop(ctx, sessionID)
	return nil
}

func (s *CachedStore) SetMFAVerified(ctx context.Context, sessionID id.SessionID) error {
	if err := s.inner.SetMFAVerified(ctx, sessionID); err != nil {
		return err
	}
	s.drop(ctx, sessionID)
	return nil
}

func (s *CachedStore) Revoke(ctx context.Context, sessionID id.SessionID) error {
	if err := s.inner.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.drop(ctx, sessionID)
	return nil
}

func (s *CachedStore) RevokeAllExcept(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error) {
	// Collect IDs before the bulk revoke so the cached copies can be dropped.
	sessions, err := s.inner.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n, err := s.inner.RevokeAllExcept(ctx, accountID, current)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if sess.ID != current {
			s.drop(ctx, sess.ID)
		}
	}
	return n, nil
}

func (s *CachedStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Session, error) {
	return s.inner.ListByAccount(ctx, accountID)
}

func (s *CachedStore) drop(ctx context.Context, sessionID id.SessionID) {
	_ = s.cache.Delete(ctx, s.keys.SessionByToken(sessionID.String()))
}

// Package challenge stores pending MFA challenges in the shared cache so any
// replica can complete a challenge minted by another. Challenges are
// single-use and expire after five minutes.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"girok/internal/auth/models"
	"girok/internal/cache"
	"girok/pkg/platform/sentinel"
)

// TTL is how long a login challenge stays redeemable.
const TTL = 5 * time.Minute

// Store keeps MFA challenges in the distributed cache.
type Store struct {
	cache cache.Cache
	keys  cache.Keys
}

func New(c cache.Cache, keys cache.Keys) *Store {
	return &Store{cache: c, keys: keys}
}

func (s *Store) Put(ctx context.Context, ch *models.MFAChallenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal mfa challenge: %w", err)
	}
	if err := s.cache.Set(ctx, s.keys.MFAChallenge(ch.ID), payload, TTL); err != nil {
		return fmt.Errorf("store mfa challenge: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, challengeID string) (*models.MFAChallenge, error) {
	payload, err := s.cache.Get(ctx, s.keys.MFAChallenge(challengeID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("mfa challenge: %w", sentinel.ErrExpired)
	}
	if err != nil {
		return nil, fmt.Errorf("load mfa challenge: %w", err)
	}
	var ch models.MFAChallenge
	if err := json.Unmarshal(payload, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal mfa challenge: %w", err)
	}
	return &ch, nil
}

// Consume deletes the challenge. Called on successful completion so a
// challenge cannot be redeemed twice.
func (s *Store) Consume(ctx context.Context, challengeID string) error {
	if err := s.cache.Delete(ctx, s.keys.MFAChallenge(challengeID)); err != nil {
		return fmt.Errorf("consume mfa challenge: %w", err)
	}
	return nil
}

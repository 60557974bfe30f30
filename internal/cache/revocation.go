package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"girok/pkg/platform/sentinel"
)

var isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "girok_is_token_revoked_duration_ms",
	Help:    "Latency of token revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// TokenRevocations is the revocation list for access-token JTIs. It is
// fail-secure: a read failure propagates so the auth guard treats unknown
// state as revoked.
type TokenRevocations struct {
	cache Cache
	keys  Keys
}

// NewTokenRevocations constructs the revocation lookup over the shared cache.
func NewTokenRevocations(cache Cache, keys Keys) *TokenRevocations {
	return &TokenRevocations{cache: cache, keys: keys}
}

// Revoke marks a JTI revoked until its natural expiry.
func (t *TokenRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := t.cache.Set(ctx, t.keys.RevokedToken(jti), []byte("1"), ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a JTI has been revoked. A cache failure is
// returned, never swallowed: the caller must treat it as revoked.
func (t *TokenRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if jti == "" {
		return false, nil
	}
	_, err := t.cache.Get(ctx, t.keys.RevokedToken(jti))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return true, nil
}

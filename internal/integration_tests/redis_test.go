//go:build integration

package integration

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"girok/internal/cache"
	"girok/pkg/platform/sentinel"
	"girok/pkg/testutil/containers"
)

// The single-flight lock must collapse a burst of concurrent readers into one
// factory call on a real Redis, not just on miniredis.
func TestSingleFlightUnderContention(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	c := cache.NewRedis(rc.Client, slog.Default())

	var computes atomic.Int32
	factory := func(ctx context.Context) ([]byte, error) {
		computes.Add(1)
		time.Sleep(100 * time.Millisecond)
		return []byte(`{"granted":true}`), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := c.GetOrCompute(ctx, "girok:consent:status:a:d", cache.TTLUserData, factory)
			require.NoError(t, err)
			results[i] = val
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), computes.Load())
	for _, val := range results {
		require.JSONEq(t, `{"granted":true}`, string(val))
	}
}

func TestPatternInvalidation(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	c := cache.NewRedis(rc.Client, slog.Default())
	keys := cache.NewKeys("girok")

	require.NoError(t, c.Set(ctx, keys.LatestDocument("TERMS_OF_SERVICE", "en"), []byte("v1"), cache.TTLSemiStatic))
	require.NoError(t, c.Set(ctx, keys.LatestDocument("TERMS_OF_SERVICE", "ko"), []byte("v1"), cache.TTLSemiStatic))
	require.NoError(t, c.Set(ctx, keys.LawByCode("GDPR"), []byte("law"), cache.TTLStaticConfig))

	removed, err := c.InvalidatePattern(ctx, keys.DocumentPattern("TERMS_OF_SERVICE"))
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = c.Get(ctx, keys.LatestDocument("TERMS_OF_SERVICE", "en"))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = c.Get(ctx, keys.LawByCode("GDPR"))
	require.NoError(t, err)
}

func TestTokenRevocationRoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	c := cache.NewRedis(rc.Client, slog.Default())
	revocations := cache.NewTokenRevocations(c, cache.NewKeys("girok"))

	revoked, err := revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, revocations.Revoke(ctx, "jti-1", time.Hour))
	revoked, err = revocations.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

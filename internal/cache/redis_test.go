package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"girok/pkg/platform/sentinel"
)

type RedisCacheSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *Redis
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.cache = NewRedis(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *RedisCacheSuite) TearDownTest() {
	s.mr.Close()
}

func (s *RedisCacheSuite) TestGetSetDelete() {
	ctx := context.Background()

	_, err := s.cache.Get(ctx, "girok:account:id:missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.cache.Set(ctx, "girok:account:id:a1", []byte(`{"id":"a1"}`), TTLUserData))

	val, err := s.cache.Get(ctx, "girok:account:id:a1")
	s.Require().NoError(err)
	s.Equal([]byte(`{"id":"a1"}`), val)

	s.Require().NoError(s.cache.Delete(ctx, "girok:account:id:a1"))
	_, err = s.cache.Get(ctx, "girok:account:id:a1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestTTLApplied() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, "girok:session:token:t1", []byte("v"), TTLSession))

	ttl := s.mr.TTL("girok:session:token:t1")
	s.Equal(TTLSession, ttl)

	s.mr.FastForward(TTLSession + time.Second)
	_, err := s.cache.Get(ctx, "girok:session:token:t1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestInvalidatePattern() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, "girok:doc:latest:TERMS_OF_SERVICE:en", []byte("v1"), TTLSemiStatic))
	s.Require().NoError(s.cache.Set(ctx, "girok:doc:latest:TERMS_OF_SERVICE:ko", []byte("v1"), TTLSemiStatic))
	s.Require().NoError(s.cache.Set(ctx, "girok:doc:latest:PRIVACY_POLICY:en", []byte("v1"), TTLSemiStatic))

	removed, err := s.cache.InvalidatePattern(ctx, "girok:doc:latest:TERMS_OF_SERVICE:*")
	s.Require().NoError(err)
	s.Equal(2, removed)

	_, err = s.cache.Get(ctx, "girok:doc:latest:PRIVACY_POLICY:en")
	s.Require().NoError(err, "non-matching keys survive")
}

func (s *RedisCacheSuite) TestGetOrComputeSingleFlight() {
	ctx := context.Background()
	var calls atomic.Int32

	factory := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("computed"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := s.cache.GetOrCompute(ctx, "girok:law:code:GDPR", TTLStaticConfig, factory)
			s.Require().NoError(err)
			results[i] = val
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), calls.Load(), "factory must run once under contention")
	for _, val := range results {
		s.Equal([]byte("computed"), val)
	}

	// Lock must have been released.
	s.False(s.mr.Exists("lock:girok:law:code:GDPR"))
}

func (s *RedisCacheSuite) TestGetOrComputeReleasesLockOnFactoryError() {
	ctx := context.Background()
	boom := errors.New("factory failed")

	_, err := s.cache.GetOrCompute(ctx, "girok:law:code:PIPA", TTLStaticConfig, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	s.Require().ErrorIs(err, boom)
	s.False(s.mr.Exists("lock:girok:law:code:PIPA"), "lock released on factory failure")

	val, err := s.cache.GetOrCompute(ctx, "girok:law:code:PIPA", TTLStaticConfig, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	s.Require().NoError(err)
	s.Equal([]byte("ok"), val)
}

func TestTokenRevocations(t *testing.T) {
	keys := NewKeys("girok")

	newCache := func(t *testing.T) (*Redis, *miniredis.Miniredis) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewRedis(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
	}

	t.Run("unknown jti is not revoked", func(t *testing.T) {
		c, _ := newCache(t)
		trl := NewTokenRevocations(c, keys)
		revoked, err := trl.IsRevoked(context.Background(), "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("revoked jti is reported until expiry", func(t *testing.T) {
		c, mr := newCache(t)
		trl := NewTokenRevocations(c, keys)
		require.NoError(t, trl.Revoke(context.Background(), "jti-2", time.Hour))

		revoked, err := trl.IsRevoked(context.Background(), "jti-2")
		require.NoError(t, err)
		assert.True(t, revoked)

		mr.FastForward(2 * time.Hour)
		revoked, err = trl.IsRevoked(context.Background(), "jti-2")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("fail-secure: backend outage surfaces as error", func(t *testing.T) {
		c, mr := newCache(t)
		trl := NewTokenRevocations(c, keys)
		mr.Close()

		_, err := trl.IsRevoked(context.Background(), "jti-3")
		require.Error(t, err, "cache outage must propagate, never report not-revoked")
	})
}

func TestKeysNamespacing(t *testing.T) {
	keys := NewKeys("girok")
	assert.Equal(t, "girok:account:id:a1", keys.AccountByID("a1"))
	assert.Equal(t, "girok:revoked:j1", keys.RevokedToken("j1"))
	assert.Equal(t, "girok:doc:latest:TERMS_OF_SERVICE:en", keys.LatestDocument("TERMS_OF_SERVICE", "en"))
	assert.Equal(t, "girok:consent:status:a1:d1", keys.ConsentStatus("a1", "d1"))
}

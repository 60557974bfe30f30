package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"girok/internal/auth/models"
	"girok/internal/cache"
	id "girok/pkg/domain"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

func newCachedFixture() (*CachedStore, *MemoryStore, cache.Cache, cache.Keys) {
	inner := NewMemory()
	c := cache.NewMemory()
	keys := cache.NewKeys("girok")
	return NewCached(inner, c, keys), inner, c, keys
}

func seedSession(t *testing.T, store *CachedStore, accountID id.AccountID) *models.Session {
	t.Helper()
	sess := &models.Session{
		ID:               id.SessionID(ident.NewUUIDv7()),
		AccountID:        accountID,
		RefreshTokenHash: "hash-" + ident.NewUUIDv7().String(),
		CreatedAt:        time.Now().UTC(),
		LastActivityAt:   time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, store.Create(context.Background(), sess))
	return sess
}

func TestCachedFindByIDPrimesAndServesFromCache(t *testing.T) {
	ctx := context.Background()
	store, inner, c, keys := newCachedFixture()
	sess := seedSession(t, store, id.AccountID(ident.NewUUIDv7()))

	got, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)

	_, err = c.Get(ctx, keys.SessionByToken(sess.ID.String()))
	require.NoError(t, err)

	// Later reads come from the cache even after the row is gone.
	require.NoError(t, inner.Revoke(ctx, sess.ID))
	got, err = store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.AccountID, got.AccountID)
}

func TestCachedRevokeDropsCachedCopy(t *testing.T) {
	ctx := context.Background()
	store, _, c, keys := newCachedFixture()
	sess := seedSession(t, store, id.AccountID(ident.NewUUIDv7()))

	_, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, sess.ID))

	_, err = c.Get(ctx, keys.SessionByToken(sess.ID.String()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.FindByID(ctx, sess.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCachedSetMFAVerifiedRefetchesOnNextRead(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newCachedFixture()
	sess := seedSession(t, store, id.AccountID(ident.NewUUIDv7()))

	got, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, got.MFAVerified)

	require.NoError(t, store.SetMFAVerified(ctx, sess.ID))

	got, err = store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.MFAVerified)
}

func TestCachedRevokeAllExceptDropsEveryOtherCopy(t *testing.T) {
	ctx := context.Background()
	store, _, c, keys := newCachedFixture()
	accountID := id.AccountID(ident.NewUUIDv7())
	current := seedSession(t, store, accountID)
	other := seedSession(t, store, accountID)

	_, err := store.FindByID(ctx, current.ID)
	require.NoError(t, err)
	_, err = store.FindByID(ctx, other.ID)
	require.NoError(t, err)

	n, err := store.RevokeAllExcept(ctx, accountID, current.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = c.Get(ctx, keys.SessionByToken(other.ID.String()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = c.Get(ctx, keys.SessionByToken(current.ID.String()))
	require.NoError(t, err)
}

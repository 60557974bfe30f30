package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"girok/internal/platform/metrics"
)

type fakeBus struct {
	mu        sync.Mutex
	published []Event
	failTypes map[string]error
}

func (b *fakeBus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failTypes[e.EventType]; ok {
		return err
	}
	b.published = append(b.published, e)
	return nil
}

var testMetrics = metrics.New()

func newWorker(store Store, bus Bus) *Worker {
	return NewWorker(store, bus, slog.New(slog.NewTextHandler(io.Discard, nil)), testMetrics)
}

func TestDrainOncePublishesInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	bus := &fakeBus{}

	require.NoError(t, store.Append(ctx, AggregateSanction, "s-1", EventSanctionApplied, map[string]string{"severity": "HIGH"}))
	require.NoError(t, store.Append(ctx, AggregateSanction, "s-1", EventSanctionRevoked, map[string]string{}))
	require.NoError(t, store.Append(ctx, AggregateConsent, "c-1", EventConsentGranted, map[string]string{}))

	require.NoError(t, newWorker(store, bus).DrainOnce(ctx))

	require.Len(t, bus.published, 3)
	assert.Equal(t, EventSanctionApplied, bus.published[0].EventType)
	assert.Equal(t, EventSanctionRevoked, bus.published[1].EventType)

	for _, e := range store.All() {
		assert.NotNil(t, e.PublishedAt, "row %s must be stamped", e.EventType)
	}
}

func TestDrainOnceIsIdempotentPerRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	bus := &fakeBus{}
	w := newWorker(store, bus)

	require.NoError(t, store.Append(ctx, AggregateDSR, "d-1", EventDSRSubmitted, map[string]string{}))
	require.NoError(t, w.DrainOnce(ctx))
	require.NoError(t, w.DrainOnce(ctx))

	assert.Len(t, bus.published, 1, "published rows must not be re-delivered by the poller")
}

func TestDrainOnceBacksOffFailedRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	bus := &fakeBus{failTypes: map[string]error{
		EventDSRDeadlineWarning: errors.New("broker unavailable"),
	}}

	require.NoError(t, store.Append(ctx, AggregateDSR, "d-1", EventDSRDeadlineWarning, map[string]string{}))
	require.NoError(t, store.Append(ctx, AggregateDSR, "d-2", EventDSRSubmitted, map[string]string{}))

	require.NoError(t, newWorker(store, bus).DrainOnce(ctx))

	// The healthy row is delivered even though an earlier row failed.
	require.Len(t, bus.published, 1)
	assert.Equal(t, EventDSRSubmitted, bus.published[0].EventType)

	all := store.All()
	assert.Equal(t, 1, all[0].RetryCount)
	assert.Nil(t, all[0].PublishedAt)
	assert.True(t, all[0].NextAttemptAt.After(time.Now()), "failed row must be deferred")
}

func TestNextAttemptBackoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Second), NextAttempt(now, 0))
	assert.Equal(t, now.Add(2*time.Second), NextAttempt(now, 1))
	assert.Equal(t, now.Add(8*time.Second), NextAttempt(now, 3))
	// Capped at five minutes regardless of retry count.
	assert.Equal(t, now.Add(5*time.Minute), NextAttempt(now, 20))
}

func TestRowsPastMaxAttemptsAreLeftForOperators(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Append(ctx, AggregateConsent, "c-1", EventConsentExpired, map[string]string{}))

	events := store.All()
	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, store.MarkFailed(ctx, events[0]))
	}
	// Force the next attempt time into the past; the retry cap must still
	// exclude the row.
	store.mu.Lock()
	store.events[0].NextAttemptAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	due, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "rows at the attempt cap are excluded from polling")

	// But never deleted.
	assert.Len(t, store.All(), 1)
}

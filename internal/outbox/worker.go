package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"girok/internal/platform/metrics"
)

// Store is the worker-side contract.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, e Event) error
	MarkFailed(ctx context.Context, e Event) error
}

// Bus delivers one event to the downstream message bus.
type Bus interface {
	Publish(ctx context.Context, e Event) error
}

// KafkaBus publishes outbox rows to Kafka, one topic per aggregate family,
// keyed by aggregate ID so per-aggregate ordering survives partitioning.
type KafkaBus struct {
	client      *kgo.Client
	topicPrefix string
}

// NewKafkaBus constructs the bus over an existing franz-go client.
func NewKafkaBus(client *kgo.Client, topicPrefix string) *KafkaBus {
	return &KafkaBus{client: client, topicPrefix: topicPrefix}
}

// EnsureTopics creates the per-aggregate topics when missing. Safe to call on
// every boot.
func (b *KafkaBus) EnsureTopics(ctx context.Context) error {
	adm := kadm.NewClient(b.client)
	topics := []string{
		b.topic(AggregateAccount),
		b.topic(AggregateSanction),
		b.topic(AggregateConsent),
		b.topic(AggregateDSR),
	}
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp.Sorted() {
		// Per-topic errors; already-exists is expected on every boot but the
		// first.
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

func (b *KafkaBus) topic(aggregateType string) string {
	return b.topicPrefix + "." + aggregateType
}

// Publish produces synchronously; the worker marks the row only after the
// broker acknowledges.
func (b *KafkaBus) Publish(ctx context.Context, e Event) error {
	record := &kgo.Record{
		Topic: b.topic(e.AggregateType),
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(e.ID.String())},
			{Key: "created_at", Value: []byte(e.CreatedAt.Format(time.RFC3339Nano))},
		},
	}
	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", record.Topic, err)
	}
	return nil
}

// Worker polls the outbox and drains rows to the bus. Delivery is
// at-least-once: a crash between Publish and MarkPublished re-delivers.
type Worker struct {
	store    Store
	bus      Bus
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
}

// NewWorker constructs the publisher worker.
func NewWorker(store Store, bus Bus, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		store:    store,
		bus:      bus,
		logger:   logger,
		metrics:  m,
		interval: time.Second,
		batch:    100,
	}
}

// Run drains until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// DrainOnce publishes one batch of due rows. Failures back off per row; the
// batch continues so one poisoned row cannot stall the stream of other
// aggregates.
func (w *Worker) DrainOnce(ctx context.Context) error {
	events, err := w.store.FetchUnpublished(ctx, w.batch)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := w.bus.Publish(ctx, e); err != nil {
			w.metrics.OutboxFailed.Inc()
			w.logger.WarnContext(ctx, "outbox publish failed",
				"event_id", e.ID.String(),
				"event_type", e.EventType,
				"retry_count", e.RetryCount,
				"error", err,
			)
			if err := w.store.MarkFailed(ctx, e); err != nil {
				return err
			}
			continue
		}
		if err := w.store.MarkPublished(ctx, e); err != nil {
			return err
		}
		w.metrics.OutboxPublished.Inc()
	}
	return nil
}

package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"girok/pkg/ident"
	txcontext "girok/pkg/platform/tx"
)

// PostgresStore persists outbox rows. Appends ride the caller's transaction;
// the worker's poll/mark operations use the pool directly.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed outbox store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes one event row. When ctx carries a transaction the row commits
// or rolls back with the caller's state change; appending outside a
// transaction is reserved for observational events like the daily summary.
func (s *PostgresStore) Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		ident.NewUUIDv7(),
		aggregateType,
		aggregateID,
		eventType,
		body,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

// FetchUnpublished returns due unpublished rows in commit order. Rows past
// MaxAttempts are excluded; they stay in the table for the operator sweep.
func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count, next_attempt_at
		FROM outbox
		WHERE published_at IS NULL
		  AND next_attempt_at <= NOW()
		  AND retry_count < $2
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit, MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished outbox rows: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.RetryCount, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return events, nil
}

// MarkPublished stamps a delivered row. Idempotent: a second call is a no-op.
func (s *PostgresStore) MarkPublished(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox row published: %w", err)
	}
	return nil
}

// MarkFailed increments the retry count and schedules the next attempt.
func (s *PostgresStore) MarkFailed(ctx context.Context, e Event) error {
	next := NextAttempt(time.Now().UTC(), e.RetryCount+1)
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, next_attempt_at = $2 WHERE id = $1`,
		e.ID, next,
	)
	if err != nil {
		return fmt.Errorf("mark outbox row failed: %w", err)
	}
	return nil
}

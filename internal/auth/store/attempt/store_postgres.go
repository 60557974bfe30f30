// Package attempt persists login attempts. The table is append-only; lockout
// decisions (thresholds, windows) belong to the auth service.
package attempt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"girok/internal/auth/models"
	"girok/pkg/ident"
	txcontext "girok/pkg/platform/tx"
)

// PostgresStore persists login attempts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Record appends one attempt. Email is normalized so the rolling window
// counts per identifier regardless of casing.
func (s *PostgresStore) Record(ctx context.Context, a *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, account_id, email_entered, ip_address, user_agent, success, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		ident.NewUUIDv7().String(), a.AccountID.String(),
		strings.ToLower(a.EmailEntered), a.IPAddress, a.UserAgent,
		a.Success, a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountRecentFailures counts failed attempts for the identifier since the
// cutoff. A success inside the window does not reset the count; the service
// clears the window by recording a success and relying on locked_until.
func (s *PostgresStore) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.runner(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email_entered = $1 AND success = FALSE AND created_at >= $2
	`, strings.ToLower(email), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent failures: %w", err)
	}
	return count, nil
}

// Package mfa persists TOTP secrets and backup-code hashes. Secrets never
// leave this table in plaintext responses; only the service reads them.
package mfa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

// PostgresStore persists MFA material in PostgreSQL.
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

// Save upserts the MFA record. Regeneration replaces the secret and all
// backup-code hashes in one statement.
func (s *PostgresStore) Save(ctx context.Context, m *models.MFASecret) error {
	query := `
		INSERT INTO mfa_secrets (account_id, state, totp_secret, backup_code_hashes, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			state = EXCLUDED.state,
			totp_secret = EXCLUDED.totp_secret,
			backup_code_hashes = EXCLUDED.backup_code_hashes,
			updated_at = NOW()
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		m.AccountID.String(), m.State, m.TOTPSecret, pq.Array(m.BackupCodeHashes))
	if err != nil {
		return fmt.Errorf("save mfa secret: %w", err)
	}
	return nil
}

// Find loads the MFA record for an account.
func (s *PostgresStore) Find(ctx context.Context, accountID id.AccountID) (*models.MFASecret, error) {
	var m models.MFASecret
	var rawID string
	var hashes pq.StringArray
	err := s.runner(ctx).QueryRowContext(ctx, `
		SELECT account_id, state, totp_secret, backup_code_hashes, updated_at
		FROM mfa_secrets WHERE account_id = $1
	`, accountID.String()).Scan(&rawID, &m.State, &m.TOTPSecret, &hashes, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find mfa secret: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find mfa secret: %w", err)
	}
	m.AccountID = accountID
	m.BackupCodeHashes = []string(hashes)
	return &m, nil
}

// Delete destroys the MFA record. Disable must leave nothing recoverable.
func (s *PostgresStore) Delete(ctx context.Context, accountID id.AccountID) error {
	if _, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM mfa_secrets WHERE account_id = $1`, accountID.String()); err != nil {
		return fmt.Errorf("delete mfa secret: %w", err)
	}
	return nil
}

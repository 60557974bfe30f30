// Package account persists identity subjects and their credentials. Stores
// are pure I/O; lockout decisions and hashing live in the auth service.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const accountColumns = `
	id, external_id, email, username, credential_kind, status, mode,
	mfa_enabled, email_verified, country, locale, timezone,
	locked_until, created_at, updated_at
`

// PostgresStore persists accounts and credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
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

// Create inserts the account. Email uniqueness is case-insensitive; a
// conflict surfaces as sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		a.ID.String(), a.ExternalID, strings.ToLower(a.Email), a.Username,
		a.CredentialKind, a.Status, a.Mode,
		a.MFAEnabled, a.EmailVerified, a.Country, a.Locale, a.Timezone,
		a.LockedUntil, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "external_id") {
				return fmt.Errorf("create account: %w", models.ErrExternalIDTaken)
			}
			return fmt.Errorf("create account: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// FindByID loads one account.
func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID.String())
	return scanAccount(row)
}

// FindByEmail loads one account by its case-insensitive email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, strings.ToLower(email))
	return scanAccount(row)
}

// Update persists mutable account fields.
func (s *PostgresStore) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET username = $2, status = $3, mfa_enabled = $4, email_verified = $5,
		    country = $6, locale = $7, timezone = $8, locked_until = $9, updated_at = NOW()
		WHERE id = $1
	`
	res, err := s.runner(ctx).ExecContext(ctx, query,
		a.ID.String(), a.Username, a.Status, a.MFAEnabled, a.EmailVerified,
		a.Country, a.Locale, a.Timezone, a.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update account: %w", sentinel.ErrNotFound)
	}
	return nil
}

// SaveCredential upserts the password hash for an account.
func (s *PostgresStore) SaveCredential(ctx context.Context, c *models.Credential) error {
	query := `
		INSERT INTO credentials (account_id, password_hash, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			updated_at = NOW()
	`
	_, err := s.runner(ctx).ExecContext(ctx, query, c.AccountID.String(), c.PasswordHash)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// FindCredential loads the password hash for an account.
func (s *PostgresStore) FindCredential(ctx context.Context, accountID id.AccountID) (*models.Credential, error) {
	var c models.Credential
	var rawID string
	err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT account_id, password_hash, updated_at FROM credentials WHERE account_id = $1`,
		accountID.String(),
	).Scan(&rawID, &c.PasswordHash, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find credential: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	c.AccountID = accountID
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var rawID string
	var lockedUntil sql.NullTime
	err := row.Scan(
		&rawID, &a.ExternalID, &a.Email, &a.Username, &a.CredentialKind,
		&a.Status, &a.Mode, &a.MFAEnabled, &a.EmailVerified,
		&a.Country, &a.Locale, &a.Timezone,
		&lockedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find account: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	parsed, err := id.ParseAccountID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan account id: %w", err)
	}
	a.ID = parsed
	if lockedUntil.Valid {
		a.LockedUntil = &lockedUntil.Time
	}
	return &a, nil
}

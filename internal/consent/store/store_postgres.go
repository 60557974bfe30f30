// Package store persists consents. The one-GRANTED-per-(account, document)
// invariant is enforced here; transition rules live in the consent service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"girok/internal/consent/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const consentColumns = `
	id, account_id, document_id, status,
	granted_at, expires_at, withdrawn_at,
	created_at, updated_at
`

// PostgresStore persists consents in PostgreSQL. A partial unique index on
// (account_id, document_id) WHERE status = 'GRANTED' backs the invariant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Consent) error {
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		c.ID.String(), c.AccountID.String(), c.DocumentID.String(), c.Status,
		c.GrantedAt, c.ExpiresAt, c.WithdrawnAt,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create consent: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE id = $1`, consentID.String())
	return scanConsent(row)
}

// FindGranted returns the single GRANTED consent for (account, document).
func (s *PostgresStore) FindGranted(ctx context.Context, accountID id.AccountID, documentID id.DocumentID) (*models.Consent, error) {
	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE account_id = $1 AND document_id = $2 AND status = $3
	`, accountID.String(), documentID.String(), models.StatusGranted)
	return scanConsent(row)
}

// ListByAccount returns the account's full consent history, newest first.
func (s *PostgresStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Consent, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return collectConsents(rows, "list consents")
}

// Update persists the mutable fields of one consent.
func (s *PostgresStore) Update(ctx context.Context, c *models.Consent) error {
	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE consents
		SET status = $2, expires_at = $3, withdrawn_at = $4, updated_at = NOW()
		WHERE id = $1
	`, c.ID.String(), c.Status, c.ExpiresAt, c.WithdrawnAt)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update consent: %w", sentinel.ErrNotFound)
	}
	return nil
}

// ListExpiringWithin returns GRANTED consents with expires_at in (now, until].
func (s *PostgresStore) ListExpiringWithin(ctx context.Context, now, until time.Time) ([]*models.Consent, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE status = $1 AND expires_at > $2 AND expires_at <= $3
		ORDER BY expires_at
	`, models.StatusGranted, now, until)
	if err != nil {
		return nil, fmt.Errorf("list expiring consents: %w", err)
	}
	return collectConsents(rows, "list expiring consents")
}

// ListDue returns GRANTED consents whose expiry has passed. The caller
// transitions each row in its own transaction.
func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*models.Consent, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at
	`, models.StatusGranted, now)
	if err != nil {
		return nil, fmt.Errorf("list due consents: %w", err)
	}
	return collectConsents(rows, "list due consents")
}

func collectConsents(rows *sql.Rows, op string) ([]*models.Consent, error) {
	defer rows.Close()
	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var c models.Consent
	var rawID, rawAccountID, rawDocumentID string
	err := row.Scan(
		&rawID, &rawAccountID, &rawDocumentID, &c.Status,
		&c.GrantedAt, &c.ExpiresAt, &c.WithdrawnAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find consent: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan consent: %w", err)
	}

	consentID, err := id.ParseConsentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan consent id: %w", err)
	}
	accountID, err := id.ParseAccountID(rawAccountID)
	if err != nil {
		return nil, fmt.Errorf("scan consent account id: %w", err)
	}
	documentID, err := id.ParseDocumentID(rawDocumentID)
	if err != nil {
		return nil, fmt.Errorf("scan consent document id: %w", err)
	}
	c.ID = consentID
	c.AccountID = accountID
	c.DocumentID = documentID
	return &c, nil
}

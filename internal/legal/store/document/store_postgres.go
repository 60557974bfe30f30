// Package document persists legal document versions.
package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"girok/internal/legal/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const documentColumns = `
	id, type, version, locale, service_id, country,
	title, body, summary, effective_date, expires_at, is_active,
	created_at, updated_at
`

// PostgresStore persists documents in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO legal_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var serviceID any
	if doc.ServiceID != nil {
		serviceID = doc.ServiceID.String()
	}
	_, err := s.runner(ctx).ExecContext(ctx, query,
		doc.ID.String(), doc.Type, doc.Version, doc.Locale, serviceID, doc.Country,
		doc.Title, doc.Body, doc.Summary, doc.EffectiveDate, doc.ExpiresAt, doc.IsActive,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create document: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// DeactivatePriors clears is_active on every document of (type, locale).
// Runs inside the version-cut transaction.
func (s *PostgresStore) DeactivatePriors(ctx context.Context, docType models.DocumentType, locale string) error {
	_, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE legal_documents SET is_active = FALSE, updated_at = NOW()
		WHERE type = $1 AND locale = $2 AND is_active
	`, docType, locale)
	if err != nil {
		return fmt.Errorf("deactivate documents: %w", err)
	}
	return nil
}

// FindLatest resolves the single latest document for an exact scope. Nil
// country/service match only unscoped rows; the fallback chain lives in the
// service.
func (s *PostgresStore) FindLatest(ctx context.Context, docType models.DocumentType, locale string, country *string, serviceID *id.ServiceID, now time.Time) (*models.Document, error) {
	query := `
		SELECT ` + documentColumns + ` FROM legal_documents
		WHERE type = $1 AND locale = $2 AND is_active
		  AND effective_date <= $3
		  AND (expires_at IS NULL OR expires_at > $3)
	`
	args := []any{docType, locale, now}
	if country != nil {
		args = append(args, *country)
		query += fmt.Sprintf(" AND country = $%d", len(args))
	} else {
		query += " AND country IS NULL"
	}
	if serviceID != nil {
		args = append(args, serviceID.String())
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	} else {
		query += " AND service_id IS NULL"
	}
	query += " ORDER BY effective_date DESC LIMIT 1"

	return scanDocument(s.runner(ctx).QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	return scanDocument(s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM legal_documents WHERE id = $1`, documentID.String()))
}

// ListVersions returns every version of (type, locale), newest effective
// first.
func (s *PostgresStore) ListVersions(ctx context.Context, docType models.DocumentType, locale string) ([]*models.Document, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+documentColumns+` FROM legal_documents
		WHERE type = $1 AND locale = $2
		ORDER BY effective_date DESC, created_at DESC
	`, docType, locale)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var rawID string
	var rawServiceID sql.NullString
	err := row.Scan(
		&rawID, &doc.Type, &doc.Version, &doc.Locale, &rawServiceID, &doc.Country,
		&doc.Title, &doc.Body, &doc.Summary, &doc.EffectiveDate, &doc.ExpiresAt, &doc.IsActive,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find document: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	documentID, err := id.ParseDocumentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan document id: %w", err)
	}
	doc.ID = documentID
	if rawServiceID.Valid {
		serviceID, err := id.ParseServiceID(rawServiceID.String)
		if err != nil {
			return nil, fmt.Errorf("scan document service id: %w", err)
		}
		doc.ServiceID = &serviceID
	}
	return &doc, nil
}

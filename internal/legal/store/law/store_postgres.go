// Package law persists the law registry. Requirements and special rules are
// stored as JSONB payloads keyed by a stable law code.
package law

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"girok/internal/legal/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const lawColumns = `
	id, code, name, jurisdiction, country, effective_from,
	requirements, special_rules, created_at, updated_at
`

// PostgresStore persists laws in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, l *models.Law) error {
	requirements, err := json.Marshal(l.Requirements)
	if err != nil {
		return fmt.Errorf("marshal law requirements: %w", err)
	}
	rules, err := json.Marshal(l.SpecialRules)
	if err != nil {
		return fmt.Errorf("marshal law rules: %w", err)
	}
	query := `
		INSERT INTO laws (` + lawColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.runner(ctx).ExecContext(ctx, query,
		l.ID.String(), l.Code, l.Name, l.Jurisdiction, l.Country, l.EffectiveFrom,
		requirements, rules, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create law: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create law: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Law, error) {
	return scanLaw(s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+lawColumns+` FROM laws WHERE code = $1`, code))
}

// ListActiveByCountry returns laws in force for one country, ordered by code
// for deterministic unions.
func (s *PostgresStore) ListActiveByCountry(ctx context.Context, country string, now time.Time) ([]*models.Law, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+lawColumns+` FROM laws
		WHERE country = $1 AND effective_from <= $2
		ORDER BY code
	`, country, now)
	if err != nil {
		return nil, fmt.Errorf("list laws: %w", err)
	}
	defer rows.Close()

	var out []*models.Law
	for rows.Next() {
		l, err := scanLaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list laws: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLaw(row rowScanner) (*models.Law, error) {
	var l models.Law
	var rawID string
	var requirements, rules []byte
	err := row.Scan(
		&rawID, &l.Code, &l.Name, &l.Jurisdiction, &l.Country, &l.EffectiveFrom,
		&requirements, &rules, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find law: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan law: %w", err)
	}
	lawID, err := id.ParseLawID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan law id: %w", err)
	}
	l.ID = lawID
	if err := json.Unmarshal(requirements, &l.Requirements); err != nil {
		return nil, fmt.Errorf("decode law requirements: %w", err)
	}
	if err := json.Unmarshal(rules, &l.SpecialRules); err != nil {
		return nil, fmt.Errorf("decode law rules: %w", err)
	}
	return &l, nil
}

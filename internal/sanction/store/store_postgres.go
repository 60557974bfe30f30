// Package store persists sanctions. Stores are pure I/O; transition rules
// live in the sanction service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"girok/internal/sanction/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const sanctionColumns = `
	id, subject_id, subject_type, service_id, type, severity,
	restricted_features, reason, internal_note, evidence_urls,
	issuer_id, issuer_type, start_at, end_at, status,
	appeal_status, appeal_reason, appealed_at,
	reviewer_id, review_response, reviewed_at,
	created_at, updated_at
`

// Filter narrows List. Zero values mean "any".
type Filter struct {
	SubjectID   id.AccountID
	SubjectType models.SubjectType
	Status      models.Status
	Type        models.Type
	Page        int
	Limit       int
}

// PostgresStore persists sanctions in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, sanc *models.Sanction) error {
	query := `
		INSERT INTO sanctions (` + sanctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		sanc.ID.String(), sanc.SubjectID.String(), sanc.SubjectType, serviceIDArg(sanc.ServiceID),
		sanc.Type, sanc.Severity,
		pq.Array(sanc.RestrictedFeatures), sanc.Reason, sanc.InternalNote, pq.Array(sanc.EvidenceURLs),
		sanc.IssuerID.String(), sanc.IssuerType, sanc.StartAt, sanc.EndAt, sanc.Status,
		string(sanc.AppealStatus), sanc.AppealReason, sanc.AppealedAt,
		accountIDArg(sanc.ReviewerID), sanc.ReviewResponse, sanc.ReviewedAt,
		sanc.CreatedAt, sanc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create sanction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sanctionID id.SanctionID) (*models.Sanction, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+sanctionColumns+` FROM sanctions WHERE id = $1`, sanctionID.String())
	return scanSanction(row)
}

// Update persists every mutable field. The service decides what changed.
func (s *PostgresStore) Update(ctx context.Context, sanc *models.Sanction) error {
	query := `
		UPDATE sanctions
		SET end_at = $2, status = $3,
		    appeal_status = $4, appeal_reason = $5, appealed_at = $6,
		    reviewer_id = $7, review_response = $8, reviewed_at = $9,
		    updated_at = NOW()
		WHERE id = $1
	`
	res, err := s.runner(ctx).ExecContext(ctx, query,
		sanc.ID.String(), sanc.EndAt, sanc.Status,
		string(sanc.AppealStatus), sanc.AppealReason, sanc.AppealedAt,
		accountIDArg(sanc.ReviewerID), sanc.ReviewResponse, sanc.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("update sanction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sanction rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update sanction: %w", sentinel.ErrNotFound)
	}
	return nil
}

// List returns a page of sanctions plus the unpaged total. The WHERE clause
// is assembled from known fragments with positional args.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.Sanction, int, error) {
	where := ""
	args := []any{}
	and := func(fragment string, value any) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(fragment, len(args))
	}
	if !f.SubjectID.IsNil() {
		and("subject_id = $%d", f.SubjectID.String())
	}
	if f.SubjectType != "" {
		and("subject_type = $%d", f.SubjectType)
	}
	if f.Status != "" {
		and("status = $%d", f.Status)
	}
	if f.Type != "" {
		and("type = $%d", f.Type)
	}

	var total int
	if err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sanctions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sanctions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + sanctionColumns + ` FROM sanctions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sanctions: %w", err)
	}
	defer rows.Close()

	var out []*models.Sanction
	for rows.Next() {
		sanc, err := scanSanction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sanc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list sanctions: %w", err)
	}
	return out, total, nil
}

// FindActiveBySubject returns ACTIVE sanctions whose window contains now.
// Scope filtering happens in the service, which knows the caller's service.
func (s *PostgresStore) FindActiveBySubject(ctx context.Context, subjectID id.AccountID, subjectType models.SubjectType, now time.Time) ([]*models.Sanction, error) {
	query := `
		SELECT ` + sanctionColumns + ` FROM sanctions
		WHERE subject_id = $1 AND subject_type = $2 AND status = $3
		  AND start_at <= $4 AND (end_at IS NULL OR end_at > $4)
		ORDER BY created_at
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query,
		subjectID.String(), subjectType, models.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("find active sanctions: %w", err)
	}
	defer rows.Close()

	var out []*models.Sanction
	for rows.Next() {
		sanc, err := scanSanction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sanc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find active sanctions: %w", err)
	}
	return out, nil
}

// ExpireDue bulk-transitions ACTIVE rows past their end to EXPIRED and
// returns the affected subject IDs so the caller can drop their cached
// active sets.
func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time) ([]id.AccountID, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		UPDATE sanctions SET status = $1, updated_at = NOW()
		WHERE status = $2 AND end_at IS NOT NULL AND end_at <= $3
		RETURNING subject_id
	`, models.StatusExpired, models.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("expire sanctions: %w", err)
	}
	defer rows.Close()

	var subjects []id.AccountID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("expire sanctions scan: %w", err)
		}
		subjectID, err := id.ParseAccountID(raw)
		if err != nil {
			return nil, fmt.Errorf("expire sanctions subject id: %w", err)
		}
		subjects = append(subjects, subjectID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire sanctions: %w", err)
	}
	return subjects, nil
}

func serviceIDArg(serviceID *id.ServiceID) any {
	if serviceID == nil {
		return nil
	}
	return serviceID.String()
}

func accountIDArg(accountID *id.AccountID) any {
	if accountID == nil {
		return nil
	}
	return accountID.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSanction(row rowScanner) (*models.Sanction, error) {
	var sanc models.Sanction
	var rawID, rawSubjectID, rawIssuerID string
	var rawServiceID, rawReviewerID sql.NullString
	var appealStatus string
	var features, evidence pq.StringArray
	err := row.Scan(
		&rawID, &rawSubjectID, &sanc.SubjectType, &rawServiceID, &sanc.Type, &sanc.Severity,
		&features, &sanc.Reason, &sanc.InternalNote, &evidence,
		&rawIssuerID, &sanc.IssuerType, &sanc.StartAt, &sanc.EndAt, &sanc.Status,
		&appealStatus, &sanc.AppealReason, &sanc.AppealedAt,
		&rawReviewerID, &sanc.ReviewResponse, &sanc.ReviewedAt,
		&sanc.CreatedAt, &sanc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find sanction: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan sanction: %w", err)
	}

	sanctionID, err := id.ParseSanctionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan sanction id: %w", err)
	}
	subjectID, err := id.ParseAccountID(rawSubjectID)
	if err != nil {
		return nil, fmt.Errorf("scan sanction subject id: %w", err)
	}
	issuerID, err := id.ParseAccountID(rawIssuerID)
	if err != nil {
		return nil, fmt.Errorf("scan sanction issuer id: %w", err)
	}
	sanc.ID = sanctionID
	sanc.SubjectID = subjectID
	sanc.IssuerID = issuerID
	sanc.AppealStatus = models.AppealStatus(appealStatus)
	sanc.RestrictedFeatures = []string(features)
	sanc.EvidenceURLs = []string(evidence)
	if rawServiceID.Valid {
		serviceID, err := id.ParseServiceID(rawServiceID.String)
		if err != nil {
			return nil, fmt.Errorf("scan sanction service id: %w", err)
		}
		sanc.ServiceID = &serviceID
	}
	if rawReviewerID.Valid {
		reviewerID, err := id.ParseAccountID(rawReviewerID.String)
		if err != nil {
			return nil, fmt.Errorf("scan sanction reviewer id: %w", err)
		}
		sanc.ReviewerID = &reviewerID
	}
	return &sanc, nil
}

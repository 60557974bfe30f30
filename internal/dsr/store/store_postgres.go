// Package store persists DSR requests and their append-only audit log.
// Transition rules live in the dsr service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"girok/internal/dsr/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const requestColumns = `
	id, account_id, type, status, priority, scope, legal_basis,
	deadline, extended_to, extension_reason,
	escalation_level, escalated_at, assignee_id,
	response_type, response_body, response_note,
	created_at, updated_at
`

// openStatuses are the states the escalation sweep watches.
var openStatuses = []models.Status{
	models.StatusPending, models.StatusVerified, models.StatusInProgress,
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	AccountID id.AccountID
	Status    models.Status
	Type      models.Type
	Page      int
	Limit     int
}

// PostgresStore persists DSR requests in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO dsr_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		req.ID.String(), req.AccountID.String(), req.Type, req.Status, req.Priority,
		[]byte(req.Scope), req.LegalBasis,
		req.Deadline, req.ExtendedTo, req.ExtensionReason,
		req.EscalationLevel, req.EscalatedAt, accountIDArg(req.AssigneeID),
		req.ResponseType, req.ResponseBody, req.ResponseNote,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create dsr request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.DSRID) (*models.Request, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM dsr_requests WHERE id = $1`, requestID.String())
	return scanRequest(row)
}

// Update persists every mutable field. The service decides what changed.
func (s *PostgresStore) Update(ctx context.Context, req *models.Request) error {
	query := `
		UPDATE dsr_requests
		SET status = $2, priority = $3,
		    extended_to = $4, extension_reason = $5,
		    escalation_level = $6, escalated_at = $7, assignee_id = $8,
		    response_type = $9, response_body = $10, response_note = $11,
		    updated_at = NOW()
		WHERE id = $1
	`
	res, err := s.runner(ctx).ExecContext(ctx, query,
		req.ID.String(), req.Status, req.Priority,
		req.ExtendedTo, req.ExtensionReason,
		req.EscalationLevel, req.EscalatedAt, accountIDArg(req.AssigneeID),
		req.ResponseType, req.ResponseBody, req.ResponseNote,
	)
	if err != nil {
		return fmt.Errorf("update dsr request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dsr request rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update dsr request: %w", sentinel.ErrNotFound)
	}
	return nil
}

// List returns a page of requests plus the unpaged total.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.Request, int, error) {
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
	if !f.AccountID.IsNil() {
		and("account_id = $%d", f.AccountID.String())
	}
	if f.Status != "" {
		and("status = $%d", f.Status)
	}
	if f.Type != "" {
		and("type = $%d", f.Type)
	}

	var total int
	if err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dsr_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dsr requests: %w", err)
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
	query := `SELECT ` + requestColumns + ` FROM dsr_requests` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dsr requests: %w", err)
	}
	out, err := collectRequests(rows, "list dsr requests")
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListOpen returns every request the escalation sweep watches.
func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.Request, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM dsr_requests
		WHERE status IN ($1, $2, $3)
		ORDER BY created_at
	`, openStatuses[0], openStatuses[1], openStatuses[2])
	if err != nil {
		return nil, fmt.Errorf("list open dsr requests: %w", err)
	}
	return collectRequests(rows, "list open dsr requests")
}

// ListOverdue returns open requests whose effective deadline has passed.
func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]*models.Request, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM dsr_requests
		WHERE status IN ($1, $2, $3) AND COALESCE(extended_to, deadline) <= $4
		ORDER BY COALESCE(extended_to, deadline)
	`, openStatuses[0], openStatuses[1], openStatuses[2], now)
	if err != nil {
		return nil, fmt.Errorf("list overdue dsr requests: %w", err)
	}
	return collectRequests(rows, "list overdue dsr requests")
}

// Statistics computes the observational summary in one pass.
func (s *PostgresStore) Statistics(ctx context.Context, now time.Time) (*models.Statistics, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status IN ($1, $3, $2)
		           AND COALESCE(extended_to, deadline) > $4
		           AND COALESCE(extended_to, deadline) <= $4 + interval '7 days'),
		       COUNT(*) FILTER (WHERE status IN ($1, $3, $2)
		           AND COALESCE(extended_to, deadline) <= $4),
		       COUNT(*) FILTER (WHERE status = $5)
		FROM dsr_requests
	`
	var stats models.Statistics
	err := s.runner(ctx).QueryRowContext(ctx, query,
		models.StatusPending, models.StatusInProgress, models.StatusVerified,
		now, models.StatusCompleted,
	).Scan(&stats.Total, &stats.Pending, &stats.InProgress,
		&stats.Approaching, &stats.Overdue, &stats.Completed)
	if err != nil {
		return nil, fmt.Errorf("dsr statistics: %w", err)
	}
	return &stats, nil
}

// AppendLog inserts one audit row. There is no update or delete path.
func (s *PostgresStore) AppendLog(ctx context.Context, log *models.RequestLog) error {
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO dsr_request_logs (id, request_id, action, operator_id, details, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID.String(), log.RequestID.String(), log.Action,
		accountIDArg(log.OperatorID), []byte(log.Details), log.IP, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("append dsr log: %w", err)
	}
	return nil
}

// ListLogs returns the audit trail of one request, oldest first.
func (s *PostgresStore) ListLogs(ctx context.Context, requestID id.DSRID) ([]*models.RequestLog, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT id, request_id, action, operator_id, details, ip, created_at
		FROM dsr_request_logs
		WHERE request_id = $1
		ORDER BY created_at
	`, requestID.String())
	if err != nil {
		return nil, fmt.Errorf("list dsr logs: %w", err)
	}
	defer rows.Close()

	var out []*models.RequestLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dsr logs: %w", err)
	}
	return out, nil
}

func collectRequests(rows *sql.Rows, op string) ([]*models.Request, error) {
	defer rows.Close()
	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
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

func scanRequest(row rowScanner) (*models.Request, error) {
	var req models.Request
	var rawID, rawAccountID string
	var rawAssigneeID sql.NullString
	var scope []byte
	err := row.Scan(
		&rawID, &rawAccountID, &req.Type, &req.Status, &req.Priority, &scope, &req.LegalBasis,
		&req.Deadline, &req.ExtendedTo, &req.ExtensionReason,
		&req.EscalationLevel, &req.EscalatedAt, &rawAssigneeID,
		&req.ResponseType, &req.ResponseBody, &req.ResponseNote,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find dsr request: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan dsr request: %w", err)
	}

	requestID, err := id.ParseDSRID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan dsr request id: %w", err)
	}
	accountID, err := id.ParseAccountID(rawAccountID)
	if err != nil {
		return nil, fmt.Errorf("scan dsr account id: %w", err)
	}
	req.ID = requestID
	req.AccountID = accountID
	req.Scope = scope
	if rawAssigneeID.Valid {
		assigneeID, err := id.ParseAccountID(rawAssigneeID.String)
		if err != nil {
			return nil, fmt.Errorf("scan dsr assignee id: %w", err)
		}
		req.AssigneeID = &assigneeID
	}
	return &req, nil
}

func scanLog(row rowScanner) (*models.RequestLog, error) {
	var log models.RequestLog
	var rawID, rawRequestID string
	var rawOperatorID sql.NullString
	var details []byte
	err := row.Scan(&rawID, &rawRequestID, &log.Action, &rawOperatorID,
		&details, &log.IP, &log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan dsr log: %w", err)
	}

	logID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan dsr log id: %w", err)
	}
	requestID, err := id.ParseDSRID(rawRequestID)
	if err != nil {
		return nil, fmt.Errorf("scan dsr log request id: %w", err)
	}
	log.ID = logID
	log.RequestID = requestID
	log.Details = details
	if rawOperatorID.Valid {
		operatorID, err := id.ParseAccountID(rawOperatorID.String)
		if err != nil {
			return nil, fmt.Errorf("scan dsr log operator id: %w", err)
		}
		log.OperatorID = &operatorID
	}
	return &log, nil
}

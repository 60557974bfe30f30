// Package session persists server-side session records. The refresh token is
// never stored; only its SHA-256 digest is.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
	txcontext "girok/pkg/platform/tx"
)

const sessionColumns = `
	id, account_id, refresh_token_hash, device_fingerprint, device_name,
	ip_address, user_agent, context, mfa_verified, mfa_required,
	created_at, last_activity_at, expires_at
`

// PostgresStore persists sessions in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, sess *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		sess.ID.String(), sess.AccountID.String(), sess.RefreshTokenHash,
		sess.DeviceFingerprint, sess.DeviceName, sess.IPAddress, sess.UserAgent,
		sess.Context, sess.MFAVerified, sess.MFARequired,
		sess.CreatedAt, sess.LastActivityAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID.String())
	return scanSession(row)
}

func (s *PostgresStore) FindByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	row := s.runner(ctx).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	return scanSession(row)
}

// TouchActivity slides last_activity_at, but only when the stored value is
// older than the slide interval, bounding write amplification on hot
// sessions.
func (s *PostgresStore) TouchActivity(ctx context.Context, sessionID id.SessionID, minAge string) error {
	query := `
		UPDATE sessions
		SET last_activity_at = NOW()
		WHERE id = $1 AND last_activity_at < NOW() - $2::interval
	`
	if _, err := s.runner(ctx).ExecContext(ctx, query, sessionID.String(), minAge); err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}
	return nil
}

// RotateRefreshHash swaps the refresh hash and extends expiry on refresh.
func (s *PostgresStore) RotateRefreshHash(ctx context.Context, sessionID id.SessionID, newHash string, expiresAt sql.NullTime) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $2, expires_at = COALESCE($3, expires_at), last_activity_at = NOW()
		WHERE id = $1
	`
	res, err := s.runner(ctx).ExecContext(ctx, query, sessionID.String(), newHash, expiresAt)
	if err != nil {
		return fmt.Errorf("rotate refresh hash: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh hash rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rotate refresh hash: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetMFAVerified(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.runner(ctx).ExecContext(ctx,
		`UPDATE sessions SET mfa_verified = TRUE WHERE id = $1`, sessionID.String())
	if err != nil {
		return fmt.Errorf("set session mfa verified: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session mfa verified rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set session mfa verified: %w", sentinel.ErrNotFound)
	}
	return nil
}

// Revoke deletes one session. Deleting an absent session is not an error;
// logout is idempotent.
func (s *PostgresStore) Revoke(ctx context.Context, sessionID id.SessionID) error {
	if _, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`, sessionID.String()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllExcept deletes every session of the account but the current one.
// Returns the number revoked.
func (s *PostgresStore) RevokeAllExcept(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error) {
	res, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM sessions WHERE account_id = $1 AND id <> $2`,
		accountID.String(), current.String())
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions rows affected: %w", err)
	}
	return int(rows), nil
}

// ListByAccount returns the account's sessions, newest first.
func (s *PostgresStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID.String())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var rawID, rawAccountID string
	err := row.Scan(
		&rawID, &rawAccountID, &sess.RefreshTokenHash,
		&sess.DeviceFingerprint, &sess.DeviceName, &sess.IPAddress, &sess.UserAgent,
		&sess.Context, &sess.MFAVerified, &sess.MFARequired,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find session: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sessionID, err := id.ParseSessionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan session id: %w", err)
	}
	accountID, err := id.ParseAccountID(rawAccountID)
	if err != nil {
		return nil, fmt.Errorf("scan session account id: %w", err)
	}
	sess.ID = sessionID
	sess.AccountID = accountID
	return &sess, nil
}

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "girok/pkg/domain"
	"girok/pkg/platform/sentinel"
)

// PostgresStore reads service entries from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindService(ctx context.Context, serviceID id.ServiceID) (*Service, error) {
	var svc Service
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active, created_at FROM services WHERE id = $1`,
		serviceID.String(),
	).Scan(&rawID, &svc.Name, &svc.Active, &svc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find service: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find service: %w", err)
	}
	parsed, err := id.ParseServiceID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan service id: %w", err)
	}
	svc.ID = parsed
	return &svc, nil
}

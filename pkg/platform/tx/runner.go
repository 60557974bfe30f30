package tx

import (
	"context"
	"database/sql"
)

// Runner is the transactional boundary services depend on. The SQL
// implementation opens a real transaction; tests use Nop with memory stores.
type Runner interface {
	Within(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinSerializable is the isolation level for the legal document
	// version cut; everything else uses Within.
	WithinSerializable(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs blocks inside transactions on one database.
type SQLRunner struct {
	DB *sql.DB
}

func (r SQLRunner) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	return Within(ctx, r.DB, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx)
	})
}

func (r SQLRunner) WithinSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithinSerializable(ctx, r.DB, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx)
	})
}

// Nop invokes fn directly. Memory stores have no transactions; unit tests
// accept the weaker atomicity.
type Nop struct{}

func (Nop) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (Nop) WithinSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Package service implements the authentication state machine: registration,
// the two-step login flow, MFA lifecycle, and server-side session management.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"girok/internal/auth/models"
	"girok/internal/auth/token"
	"girok/internal/platform/config"
	"girok/internal/platform/metrics"
	id "girok/pkg/domain"
	txpkg "girok/pkg/platform/tx"
)

// AccountStore persists accounts and their credentials.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, a *models.Account) error
	SaveCredential(ctx context.Context, c *models.Credential) error
	FindCredential(ctx context.Context, accountID id.AccountID) (*models.Credential, error)
}

// SessionStore persists server-side sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByRefreshHash(ctx context.Context, hash string) (*models.Session, error)
	TouchActivity(ctx context.Context, sessionID id.SessionID, minAge string) error
	RotateRefreshHash(ctx context.Context, sessionID id.SessionID, newHash string, expiresAt sql.NullTime) error
	SetMFAVerified(ctx context.Context, sessionID id.SessionID) error
	Revoke(ctx context.Context, sessionID id.SessionID) error
	RevokeAllExcept(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error)
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Session, error)
}

// AttemptStore records login attempts for rolling failure accounting.
type AttemptStore interface {
	Record(ctx context.Context, a *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error)
}

// MFAStore persists TOTP secrets and backup-code hashes.
type MFAStore interface {
	Save(ctx context.Context, m *models.MFASecret) error
	Find(ctx context.Context, accountID id.AccountID) (*models.MFASecret, error)
	Delete(ctx context.Context, accountID id.AccountID) error
}

// ChallengeStore holds pending MFA challenges between login's two steps.
type ChallengeStore interface {
	Put(ctx context.Context, ch *models.MFAChallenge) error
	Get(ctx context.Context, challengeID string) (*models.MFAChallenge, error)
	Consume(ctx context.Context, challengeID string) error
}

// TokenService mints and validates access tokens.
type TokenService interface {
	Mint(accountID id.AccountID, sessionID id.SessionID, mode, scope string) (accessToken, jti string, expiresAt time.Time, err error)
	Validate(ctx context.Context, accessToken string) (*token.Claims, error)
	Lifetime() time.Duration
}

// Revoker blacklists access-token jtis ahead of natural expiry.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// Outbox appends domain events inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Service is the authentication engine.
type Service struct {
	accounts   AccountStore
	sessions   SessionStore
	attempts   AttemptStore
	mfa        MFAStore
	challenges ChallengeStore
	tokens     TokenService
	revoker    Revoker
	outbox     Outbox
	tx         txpkg.Runner
	cfg        config.AuthConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func New(
	accounts AccountStore,
	sessions SessionStore,
	attempts AttemptStore,
	mfa MFAStore,
	challenges ChallengeStore,
	tokens TokenService,
	revoker Revoker,
	ob Outbox,
	runner txpkg.Runner,
	cfg config.AuthConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		sessions:   sessions,
		attempts:   attempts,
		mfa:        mfa,
		challenges: challenges,
		tokens:     tokens,
		revoker:    revoker,
		outbox:     ob,
		tx:         runner,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

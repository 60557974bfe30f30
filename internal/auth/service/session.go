package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"girok/internal/auth/models"
	"girok/internal/auth/token"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/platform/sentinel"
)

// ValidateSessionToken resolves a cookie value to its account and session.
// It implements the middleware contract; anything off the happy path is a
// generic unauthorized.
func (s *Service) ValidateSessionToken(ctx context.Context, token string) (id.AccountID, id.SessionID, error) {
	sessionID, err := id.ParseSessionID(token)
	if err != nil {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	now := s.now().UTC()
	if sess.Expired(now) {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	if sess.MFARequired && !sess.MFAVerified {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "mfa verification pending")
	}
	account, err := s.accounts.FindByID(ctx, sess.AccountID)
	if err != nil {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	if account.Status != models.AccountActive {
		return id.AccountID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "account is not active")
	}
	// Sliding activity; the interval guard keeps hot sessions from writing
	// on every request.
	if err := s.sessions.TouchActivity(ctx, sessionID, intervalString(s.cfg.ActivitySlideEvery)); err != nil {
		s.logger.WarnContext(ctx, "failed to touch session activity", "error", err)
	}
	return sess.AccountID, sess.ID, nil
}

// ValidateAccessToken resolves a bearer access token to its account, session,
// and jti. Pre-MFA tokens only cover the second login step, so they are
// rejected here.
func (s *Service) ValidateAccessToken(ctx context.Context, raw string) (id.AccountID, id.SessionID, string, error) {
	claims, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return id.AccountID{}, id.SessionID{}, "", err
	}
	if claims.Scope != token.ScopeFull {
		return id.AccountID{}, id.SessionID{}, "", dErrors.New(dErrors.CodeUnauthorized, "mfa verification pending")
	}
	accountID, err := claims.ParsedAccountID()
	if err != nil {
		return id.AccountID{}, id.SessionID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	sessionID, err := claims.ParsedSessionID()
	if err != nil {
		return id.AccountID{}, id.SessionID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return accountID, sessionID, claims.ID, nil
}

// Logout revokes the session and blacklists the presented access token's jti
// for the remainder of its lifetime. Idempotent.
func (s *Service) Logout(ctx context.Context, sessionID id.SessionID, jti string) error {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	err = s.tx.Within(ctx, func(ctx context.Context) error {
		if err := s.sessions.Revoke(ctx, sessionID); err != nil {
			return err
		}
		return s.outbox.Append(ctx, outbox.AggregateAccount, sess.AccountID.String(),
			outbox.EventLogout, map[string]any{
				"account_id": sess.AccountID.String(),
				"session_id": sessionID.String(),
			})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	if jti != "" {
		if err := s.revoker.Revoke(ctx, jti, s.tokens.Lifetime()); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke access token",
				"session_id", sessionID.String(), "error", err)
		}
	}
	return nil
}

// Refresh rotates the refresh token and mints a fresh access token. The old
// refresh token is dead the moment the new hash commits.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	sess, err := s.sessions.FindByRefreshHash(ctx, HashToken(refreshToken))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	now := s.now().UTC()
	if sess.Expired(now) {
		_ = s.sessions.Revoke(ctx, sess.ID)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	account, err := s.accounts.FindByID(ctx, sess.AccountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account.Status != models.AccountActive {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account is not active")
	}

	newToken, newHash, err := newRefreshToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}
	expiresAt := sql.NullTime{Time: now.Add(s.cfg.RefreshTokenLifetime), Valid: true}
	if err := s.sessions.RotateRefreshHash(ctx, sess.ID, newHash, expiresAt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate refresh token")
	}

	accessToken, _, accessExpiry, err := s.tokens.Mint(account.ID, sess.ID, string(account.Mode), scopeFor(account, sess.MFAVerified))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint access token")
	}
	return &SessionTokens{
		SessionID:    sess.ID,
		AccountID:    account.ID,
		AccessToken:  accessToken,
		RefreshToken: newToken,
		ExpiresAt:    accessExpiry,
	}, nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every other session of the account.
func (s *Service) ChangePassword(ctx context.Context, accountID id.AccountID, currentSessionID id.SessionID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}
	cred, err := s.accounts.FindCredential(ctx, accountID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(currentPassword)) != nil {
		return dErrors.New(dErrors.CodeInvalidCredentials, "current password is incorrect")
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	var revoked int
	err = s.tx.Within(ctx, func(ctx context.Context) error {
		if err := s.accounts.SaveCredential(ctx, &models.Credential{
			AccountID:    accountID,
			PasswordHash: string(newHash),
		}); err != nil {
			return err
		}
		revoked, err = s.sessions.RevokeAllExcept(ctx, accountID, currentSessionID)
		if err != nil {
			return err
		}
		return s.outbox.Append(ctx, outbox.AggregateAccount, accountID.String(),
			outbox.EventPasswordChanged, map[string]any{
				"account_id":       accountID.String(),
				"sessions_revoked": revoked,
			})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to change password")
	}

	s.logger.InfoContext(ctx, "password changed",
		"account_id", accountID.String(), "sessions_revoked", revoked)
	return nil
}

// ListSessions returns the account's sessions for the device list.
func (s *Service) ListSessions(ctx context.Context, accountID id.AccountID) ([]*models.Session, error) {
	sessions, err := s.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// RevokeOtherSessions signs the account out everywhere but here.
func (s *Service) RevokeOtherSessions(ctx context.Context, accountID id.AccountID, current id.SessionID) (int, error) {
	revoked, err := s.sessions.RevokeAllExcept(ctx, accountID, current)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
	}
	return revoked, nil
}

// intervalString renders a Go duration as a Postgres interval literal.
func intervalString(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}

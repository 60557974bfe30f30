package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"girok/internal/auth/models"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

// dummyHash burns the same bcrypt cost for unknown emails as for real ones,
// so response timing does not reveal whether an email is registered.
var dummyHash []byte

func init() {
	var err error
	dummyHash, err = bcrypt.GenerateFromPassword([]byte("girok-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
}

// LoginRequest carries the first login step.
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
	Context   models.SessionContext
}

// LoginResult is either a completed session or a pending MFA challenge,
// never both.
type LoginResult struct {
	Session      *SessionTokens
	MFARequired  bool
	ChallengeID  string
	Methods      []string
	ChallengeTTL time.Duration
}

// SessionTokens is what a completed login hands to the client.
type SessionTokens struct {
	SessionID    id.SessionID
	AccountID    id.AccountID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Login runs the credential step. Accounts with MFA enabled get a short-lived
// challenge instead of a session; everyone else gets tokens directly.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	now := s.now().UTC()

	if err := s.checkLockout(ctx, email, now); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Unknown email burns the same bcrypt cost as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		s.recordFailure(ctx, id.SentinelAccountID, email, req, "unknown_email", now)
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	if account.Status == models.AccountSuspended {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		s.recordFailure(ctx, account.ID, email, req, "suspended", now)
		return nil, dErrors.New(dErrors.CodeForbidden, "account is suspended")
	}
	if account.LockedUntil != nil && now.Before(*account.LockedUntil) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		s.recordFailure(ctx, account.ID, email, req, "locked", now)
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
	}

	cred, err := s.accounts.FindCredential(ctx, account.ID)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		s.recordFailure(ctx, account.ID, email, req, "no_credential", now)
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)) != nil {
		s.recordFailure(ctx, account.ID, email, req, "bad_password", now)
		s.maybeLock(ctx, account, email, now)
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
	}

	if account.MFAEnabled {
		return s.issueChallenge(ctx, account, email)
	}
	return s.completeLogin(ctx, account, email, req, false)
}

// checkLockout rejects before the bcrypt compare once the rolling window is
// exhausted, so attackers cannot keep burning attempts.
func (s *Service) checkLockout(ctx context.Context, email string, now time.Time) error {
	failures, err := s.attempts.CountRecentFailures(ctx, email, now.Add(-s.cfg.FailureWindow))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check login attempts")
	}
	if failures >= s.cfg.MaxFailedAttempts {
		return dErrors.New(dErrors.CodeAccountLocked, "too many failed attempts, try again later")
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, accountID id.AccountID, email string, req LoginRequest, reason string, now time.Time) {
	s.metrics.LoginsTotal.WithLabelValues("failure").Inc()
	if err := s.attempts.Record(ctx, &models.LoginAttempt{
		AccountID:    accountID,
		EmailEntered: email,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Success:      false,
		Reason:       reason,
		CreatedAt:    now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login attempt", "error", err)
	}
}

// maybeLock sets locked_until when this failure crossed the threshold.
func (s *Service) maybeLock(ctx context.Context, account *models.Account, email string, now time.Time) {
	failures, err := s.attempts.CountRecentFailures(ctx, email, now.Add(-s.cfg.FailureWindow))
	if err != nil || failures < s.cfg.MaxFailedAttempts {
		return
	}
	until := now.Add(s.cfg.LockDuration)
	account.LockedUntil = &until
	if err := s.accounts.Update(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to lock account",
			"account_id", account.ID.String(), "error", err)
	}
}

func (s *Service) issueChallenge(ctx context.Context, account *models.Account, email string) (*LoginResult, error) {
	challengeID, err := newChallengeID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate challenge id")
	}
	ch := &models.MFAChallenge{
		ID:        challengeID,
		AccountID: account.ID,
		Email:     email,
		Methods:   []string{models.MethodTOTP, models.MethodBackupCode},
		ExpiresAt: s.now().UTC().Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to create mfa challenge")
	}
	s.metrics.LoginsTotal.WithLabelValues("mfa_challenge").Inc()
	return &LoginResult{
		MFARequired:  true,
		ChallengeID:  ch.ID,
		Methods:      ch.Methods,
		ChallengeTTL: s.cfg.ChallengeTTL,
	}, nil
}

// LoginMFARequest carries the second login step.
type LoginMFARequest struct {
	ChallengeID string
	Method      string
	Code        string
	IPAddress   string
	UserAgent   string
	Context     models.SessionContext
}

// LoginMFA completes a pending challenge. The challenge is consumed only on
// success; a wrong code leaves it redeemable until its TTL.
func (s *Service) LoginMFA(ctx context.Context, req LoginMFARequest) (*LoginResult, error) {
	ch, err := s.challenges.Get(ctx, req.ChallengeID)
	if errors.Is(err, sentinel.ErrExpired) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge expired or unknown")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "failed to load mfa challenge")
	}
	now := s.now().UTC()
	if now.After(ch.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge expired or unknown")
	}

	secret, err := s.mfa.Find(ctx, ch.AccountID)
	if err != nil || secret.State != models.MFAEnabled {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "mfa is not enabled")
	}

	ok, err := s.verifyMFACode(ctx, secret, req.Method, req.Code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.LoginsTotal.WithLabelValues("mfa_failure").Inc()
		loginReq := LoginRequest{IPAddress: req.IPAddress, UserAgent: req.UserAgent}
		s.recordFailure(ctx, ch.AccountID, ch.Email, loginReq, "bad_mfa_code", now)
		if err := s.outbox.Append(ctx, outbox.AggregateAccount, ch.AccountID.String(),
			outbox.EventMFAFailed, map[string]any{
				"account_id": ch.AccountID.String(),
				"method":     req.Method,
			}); err != nil {
			s.logger.ErrorContext(ctx, "failed to append mfa event", "error", err)
		}
		return nil, dErrors.New(dErrors.CodeInvalidMfaCode, "invalid verification code")
	}

	account, err := s.accounts.FindByID(ctx, ch.AccountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if err := s.challenges.Consume(ctx, ch.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to consume mfa challenge", "error", err)
	}
	return s.completeLogin(ctx, account, ch.Email, LoginRequest{
		Email:     ch.Email,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Context:   req.Context,
	}, true)
}

// verifyMFACode checks a TOTP or backup code. A used backup code is removed
// in the same call so it can never be redeemed twice.
func (s *Service) verifyMFACode(ctx context.Context, secret *models.MFASecret, method, code string, now time.Time) (bool, error) {
	switch method {
	case models.MethodTOTP:
		ok, err := ident.VerifyTOTP(secret.TOTPSecret, code, now)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify totp code")
		}
		return ok, nil
	case models.MethodBackupCode:
		ok, remaining := ident.VerifyBackupCode(code, secret.BackupCodeHashes)
		if !ok {
			return false, nil
		}
		secret.BackupCodeHashes = remaining
		if err := s.mfa.Save(ctx, secret); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume backup code")
		}
		return true, nil
	default:
		return false, dErrors.New(dErrors.CodeInvalidInput, "unknown mfa method")
	}
}

// completeLogin mints the session and tokens. Session row, success attempt,
// and the login event commit together.
func (s *Service) completeLogin(ctx context.Context, account *models.Account, email string, req LoginRequest, mfaVerified bool) (*LoginResult, error) {
	now := s.now().UTC()
	refreshToken, refreshHash, err := newRefreshToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}

	sessionContext := req.Context
	if sessionContext == "" {
		sessionContext = models.ContextUser
	}
	sess := &models.Session{
		ID:                id.SessionID(ident.NewUUIDv7()),
		AccountID:         account.ID,
		RefreshTokenHash:  refreshHash,
		DeviceFingerprint: fingerprint(req.IPAddress, req.UserAgent),
		DeviceName:        deviceName(req.UserAgent),
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		Context:           sessionContext,
		MFAVerified:       mfaVerified,
		MFARequired:       account.MFAEnabled,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(s.cfg.RefreshTokenLifetime),
	}

	err = s.tx.Within(ctx, func(ctx context.Context) error {
		if err := s.sessions.Create(ctx, sess); err != nil {
			return err
		}
		if err := s.attempts.Record(ctx, &models.LoginAttempt{
			AccountID:    account.ID,
			EmailEntered: email,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
			Success:      true,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return s.outbox.Append(ctx, outbox.AggregateAccount, account.ID.String(),
			outbox.EventLoginSuccess, map[string]any{
				"account_id":   account.ID.String(),
				"session_id":   sess.ID.String(),
				"ip_address":   req.IPAddress,
				"device_name":  sess.DeviceName,
				"mfa_verified": mfaVerified,
			})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	// Clear any residual lock once a login succeeds.
	if account.LockedUntil != nil {
		account.LockedUntil = nil
		if err := s.accounts.Update(ctx, account); err != nil {
			s.logger.WarnContext(ctx, "failed to clear account lock", "error", err)
		}
	}

	scope := scopeFor(account, mfaVerified)
	accessToken, _, expiresAt, err := s.tokens.Mint(account.ID, sess.ID, string(account.Mode), scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint access token")
	}

	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "login succeeded",
		"account_id", account.ID.String(),
		"session_id", sess.ID.String(),
		"mfa_verified", mfaVerified,
	)
	return &LoginResult{Session: &SessionTokens{
		SessionID:    sess.ID,
		AccountID:    account.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}}, nil
}

func scopeFor(account *models.Account, mfaVerified bool) string {
	if account.MFAEnabled && !mfaVerified {
		return "pre_mfa"
	}
	return "full"
}

// newChallengeID returns an unguessable 32-byte hex identifier. Challenge
// IDs are bearer credentials for the second login step, so they carry no
// timestamp structure.
func newChallengeID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// newRefreshToken returns the opaque token and the SHA-256 hex digest that is
// the only thing ever persisted.
func newRefreshToken() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken is the digest applied to refresh tokens before storage or lookup.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func fingerprint(ip, ua string) string {
	sum := sha256.Sum256([]byte(ip + "|" + ua))
	return hex.EncodeToString(sum[:16])
}

// deviceName renders "Chrome on Linux" style labels for the session list.
func deviceName(rawUA string) string {
	if rawUA == "" {
		return "Unknown device"
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown device"
	}
}

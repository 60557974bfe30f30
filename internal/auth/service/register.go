package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"girok/internal/auth/models"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	emailutil "girok/pkg/email"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

const (
	minPasswordLength  = 8
	externalIDAttempts = 3
)

// RegisterRequest carries registration input after transport decoding.
type RegisterRequest struct {
	Email     string
	Password  string
	Username  string
	Country   string
	Locale    string
	Timezone  string
	IPAddress string
	UserAgent string
}

// RegisterResult is what the handler returns on 201. Registration logs the
// account in: Session carries the first session's tokens.
type RegisterResult struct {
	AccountID  id.AccountID
	ExternalID string
	Email      string
	Session    *SessionTokens
}

// Register creates an account with a local credential and its first session.
// The account row, credential row, session row, and the registration event
// commit in one transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := s.now().UTC()
	username := strings.TrimSpace(req.Username)
	if username == "" {
		first, last := emailutil.DeriveNameFromEmail(email)
		username = first + " " + last
	}
	account := &models.Account{
		ID:             id.AccountID(ident.NewUUIDv7()),
		Email:          email,
		Username:       username,
		CredentialKind: models.CredentialLocal,
		Status:         models.AccountActive,
		Mode:           models.ModeUser,
		Country:        req.Country,
		Locale:         defaultString(req.Locale, "en"),
		Timezone:       defaultString(req.Timezone, "UTC"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	refreshToken, refreshHash, err := newRefreshToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}
	sess := &models.Session{
		ID:                id.SessionID(ident.NewUUIDv7()),
		AccountID:         account.ID,
		RefreshTokenHash:  refreshHash,
		DeviceFingerprint: fingerprint(req.IPAddress, req.UserAgent),
		DeviceName:        deviceName(req.UserAgent),
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		Context:           models.ContextUser,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(s.cfg.RefreshTokenLifetime),
	}

	// The external ID's random suffix can collide; regenerate and retry a
	// bounded number of times before giving up.
	for attempt := 1; ; attempt++ {
		externalID, err := ident.NewExternalID(now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate external id")
		}
		account.ExternalID = externalID

		err = s.tx.Within(ctx, func(ctx context.Context) error {
			if err := s.accounts.Create(ctx, account); err != nil {
				return err
			}
			if err := s.accounts.SaveCredential(ctx, &models.Credential{
				AccountID:    account.ID,
				PasswordHash: string(hash),
				UpdatedAt:    now,
			}); err != nil {
				return err
			}
			if err := s.sessions.Create(ctx, sess); err != nil {
				return err
			}
			return s.outbox.Append(ctx, outbox.AggregateAccount, account.ID.String(),
				outbox.EventAccountRegistered, map[string]any{
					"account_id":  account.ID.String(),
					"external_id": account.ExternalID,
					"email":       account.Email,
					"country":     account.Country,
				})
		})
		if errors.Is(err, models.ErrExternalIDTaken) && attempt < externalIDAttempts {
			continue
		}
		if err == nil {
			break
		}
		return nil, registerError(err)
	}

	accessToken, _, expiresAt, err := s.tokens.Mint(account.ID, sess.ID, string(account.Mode), scopeFor(account, false))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint access token")
	}

	s.metrics.AccountsRegistered.Inc()
	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"external_id", account.ExternalID,
	)
	return &RegisterResult{
		AccountID:  account.ID,
		ExternalID: account.ExternalID,
		Email:      account.Email,
		Session: &SessionTokens{
			SessionID:    sess.ID,
			AccountID:    account.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		},
	}, nil
}

func registerError(err error) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register account")
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

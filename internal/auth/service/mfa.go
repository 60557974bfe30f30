package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"girok/internal/auth/models"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

// MFASetupResult carries the provisioned secret. The secret is shown exactly
// once; after enable it never leaves the store.
type MFASetupResult struct {
	Secret          string
	ProvisioningURI string
}

// SetupMFA provisions a fresh TOTP secret. Calling it again before enable
// replaces the pending secret; calling it while enabled is a conflict.
func (s *Service) SetupMFA(ctx context.Context, accountID id.AccountID) (*MFASetupResult, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account.MFAEnabled {
		return nil, dErrors.New(dErrors.CodeConflict, "mfa is already enabled")
	}

	secret, err := ident.NewTOTPSecret()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate totp secret")
	}
	if err := s.mfa.Save(ctx, &models.MFASecret{
		AccountID:  accountID,
		State:      models.MFAProvisioned,
		TOTPSecret: secret,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store totp secret")
	}
	return &MFASetupResult{
		Secret:          secret,
		ProvisioningURI: ident.TOTPProvisioningURI(secret, account.Email),
	}, nil
}

// EnableMFA confirms the provisioned secret with a live TOTP code and mints
// the backup codes. Plaintext codes are returned once and never again.
func (s *Service) EnableMFA(ctx context.Context, accountID id.AccountID, code string) ([]string, error) {
	secret, err := s.mfa.Find(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodePrecondition, "mfa setup has not been started")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load totp secret")
	}
	if secret.State == models.MFAEnabled {
		return nil, dErrors.New(dErrors.CodeConflict, "mfa is already enabled")
	}
	ok, err := ident.VerifyTOTP(secret.TOTPSecret, code, s.now().UTC())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify totp code")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidMfaCode, "invalid verification code")
	}

	codes, hashes, err := ident.NewBackupCodes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup codes")
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	err = s.tx.Within(ctx, func(ctx context.Context) error {
		secret.State = models.MFAEnabled
		secret.BackupCodeHashes = hashes
		if err := s.mfa.Save(ctx, secret); err != nil {
			return err
		}
		account.MFAEnabled = true
		return s.accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enable mfa")
	}

	s.logger.InfoContext(ctx, "mfa enabled", "account_id", accountID.String())
	return codes, nil
}

// DisableMFA requires the password plus a valid code, then destroys all MFA
// material.
func (s *Service) DisableMFA(ctx context.Context, accountID id.AccountID, password, method, code string) error {
	cred, err := s.accounts.FindCredential(ctx, accountID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return dErrors.New(dErrors.CodeInvalidCredentials, "password is incorrect")
	}

	secret, err := s.mfa.Find(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodePrecondition, "mfa is not enabled")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load totp secret")
	}
	ok, err := s.verifyMFACode(ctx, secret, method, code, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeInvalidMfaCode, "invalid verification code")
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	err = s.tx.Within(ctx, func(ctx context.Context) error {
		if err := s.mfa.Delete(ctx, accountID); err != nil {
			return err
		}
		account.MFAEnabled = false
		return s.accounts.Update(ctx, account)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to disable mfa")
	}

	s.logger.InfoContext(ctx, "mfa disabled", "account_id", accountID.String())
	return nil
}

// RegenerateBackupCodes replaces every backup code. The old set is dead the
// moment the new hashes commit.
func (s *Service) RegenerateBackupCodes(ctx context.Context, accountID id.AccountID, password string) ([]string, error) {
	cred, err := s.accounts.FindCredential(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "password is incorrect")
	}

	secret, err := s.mfa.Find(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && secret.State != models.MFAEnabled) {
		return nil, dErrors.New(dErrors.CodePrecondition, "mfa is not enabled")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load totp secret")
	}

	codes, hashes, err := ident.NewBackupCodes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup codes")
	}
	secret.BackupCodeHashes = hashes
	if err := s.mfa.Save(ctx, secret); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store backup codes")
	}
	return codes, nil
}

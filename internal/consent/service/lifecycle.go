package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"girok/internal/cache"
	"girok/internal/consent/models"
	"girok/internal/outbox"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	"girok/pkg/platform/sentinel"
)

// GrantRequest carries one consent grant.
type GrantRequest struct {
	AccountID  id.AccountID
	DocumentID id.DocumentID
	ExpiresAt  *time.Time
}

// Grant records the account's consent to a document version. The document
// must resolve; a second grant for the same (account, document) conflicts.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*models.Consent, error) {
	if req.AccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account identity required")
	}
	if req.DocumentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document_id is required")
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "expires_at must be in the future")
	}
	if _, err := s.documents.Get(ctx, req.DocumentID); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeNotFound {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "document does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve document")
	}

	consent := &models.Consent{
		ID:         id.ConsentID(ident.NewUUIDv7()),
		AccountID:  req.AccountID,
		DocumentID: req.DocumentID,
		Status:     models.StatusGranted,
		GrantedAt:  now,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, consent); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "consent already granted")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist consent")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateConsent, consent.ID.String(),
			outbox.EventConsentGranted, payloadFor(consent)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append consent event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatus(ctx, consent.AccountID, consent.DocumentID)
	s.logger.InfoContext(ctx, "consent granted",
		"consent_id", consent.ID, "account_id", consent.AccountID, "document_id", consent.DocumentID)
	return consent, nil
}

// Withdraw transitions the account's own GRANTED consent to WITHDRAWN.
func (s *Service) Withdraw(ctx context.Context, consentID id.ConsentID, accountID id.AccountID) (*models.Consent, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account identity required")
	}
	consent, err := s.findConsent(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if consent.AccountID != accountID {
		return nil, dErrors.New(dErrors.CodeForbidden, "consent belongs to another account")
	}
	if consent.Status != models.StatusGranted {
		return nil, dErrors.New(dErrors.CodePrecondition, "consent is not granted")
	}

	now := s.now()
	consent.Status = models.StatusWithdrawn
	consent.WithdrawnAt = &now
	consent.UpdatedAt = now
	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, consent); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist consent")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateConsent, consent.ID.String(),
			outbox.EventConsentWithdrawn, payloadFor(consent)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append consent event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatus(ctx, consent.AccountID, consent.DocumentID)
	s.logger.InfoContext(ctx, "consent withdrawn",
		"consent_id", consent.ID, "account_id", consent.AccountID)
	return consent, nil
}

// Get returns one consent. Callers see only their own rows.
func (s *Service) Get(ctx context.Context, consentID id.ConsentID, accountID id.AccountID) (*models.Consent, error) {
	consent, err := s.findConsent(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if consent.AccountID != accountID {
		return nil, dErrors.New(dErrors.CodeForbidden, "consent belongs to another account")
	}
	return consent, nil
}

// List returns the account's full consent history.
func (s *Service) List(ctx context.Context, accountID id.AccountID) ([]*models.Consent, error) {
	consents, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list consents")
	}
	return consents, nil
}

// StatusResult answers "does this account currently consent to this
// document".
type StatusResult struct {
	Granted   bool       `json:"granted"`
	ConsentID string     `json:"consent_id,omitempty"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status is the cached consent lookup. A GRANTED row past its expiry reads
// as not granted even before the sweep transitions it.
func (s *Service) Status(ctx context.Context, accountID id.AccountID, documentID id.DocumentID) (*StatusResult, error) {
	key := s.keys.ConsentStatus(accountID.String(), documentID.String())
	raw, err := s.cache.GetOrCompute(ctx, key, cache.TTLUserData,
		func(ctx context.Context) ([]byte, error) {
			consent, err := s.store.FindGranted(ctx, accountID, documentID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return json.Marshal(StatusResult{})
			}
			if err != nil {
				return nil, err
			}
			return json.Marshal(StatusResult{
				Granted:   true,
				ConsentID: consent.ID.String(),
				GrantedAt: &consent.GrantedAt,
				ExpiresAt: consent.ExpiresAt,
			})
		})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load consent status")
	}
	var result StatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode cached consent status")
	}
	if result.Granted && result.ExpiresAt != nil && !result.ExpiresAt.After(s.now()) {
		result.Granted = false
	}
	return &result, nil
}

func (s *Service) findConsent(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	consent, err := s.store.FindByID(ctx, consentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load consent")
	}
	return consent, nil
}

package service

import (
	"context"
	"time"

	"girok/internal/outbox"
	"girok/internal/sanction/models"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
	"girok/pkg/ident"
	strutil "girok/pkg/platform/strings"
)

// CreateRequest carries a new sanction. IssuerID comes from the operator
// identity header, never from the body.
type CreateRequest struct {
	SubjectID          id.AccountID
	SubjectType        models.SubjectType
	ServiceID          *id.ServiceID
	Type               models.Type
	Severity           int
	RestrictedFeatures []string
	Reason             string
	InternalNote       string
	EvidenceURLs       []string
	IssuerID           id.AccountID
	IssuerType         models.SubjectType
	StartAt            time.Time
	EndAt              *time.Time
}

func (r CreateRequest) validate(now time.Time) error {
	if r.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	}
	if r.IssuerID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "operator identity is required")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "reason is required")
	}
	if r.Severity < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "severity must be positive")
	}
	switch r.Type {
	case models.TypeTemporaryBan:
		if r.EndAt == nil {
			return dErrors.New(dErrors.CodeInvalidInput, "temporary ban requires end_at")
		}
	case models.TypePermanentBan:
		if r.EndAt != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "permanent ban cannot carry end_at")
		}
	case models.TypeFeatureRestriction:
		if len(r.RestrictedFeatures) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "feature restriction requires restricted_features")
		}
	case models.TypeWarning:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown sanction type")
	}
	start := r.StartAt
	if start.IsZero() {
		start = now
	}
	if r.EndAt != nil && r.EndAt.Before(start) {
		return dErrors.New(dErrors.CodeInvalidInput, "end_at precedes start_at")
	}
	return nil
}

// Create issues a sanction. The row and its SANCTION_APPLIED event commit
// together.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Sanction, error) {
	now := s.now()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	startAt := req.StartAt
	if startAt.IsZero() {
		startAt = now
	}
	sanc := &models.Sanction{
		ID:                 id.SanctionID(ident.NewUUIDv7()),
		SubjectID:          req.SubjectID,
		SubjectType:        req.SubjectType,
		ServiceID:          req.ServiceID,
		Type:               req.Type,
		Severity:           req.Severity,
		RestrictedFeatures: strutil.DedupeAndTrimLower(req.RestrictedFeatures),
		Reason:             req.Reason,
		InternalNote:       req.InternalNote,
		EvidenceURLs:       strutil.DedupeAndTrim(req.EvidenceURLs),
		IssuerID:           req.IssuerID,
		IssuerType:         req.IssuerType,
		StartAt:            startAt,
		EndAt:              req.EndAt,
		Status:             models.StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, sanc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist sanction")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateSanction, sanc.ID.String(),
			outbox.EventSanctionApplied, payloadFor(sanc, req.IssuerID, req.Reason)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append sanction event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActive(ctx, sanc.SubjectID)
	s.logger.InfoContext(ctx, "sanction applied",
		"sanction_id", sanc.ID, "subject_id", sanc.SubjectID, "type", sanc.Type)
	return sanc, nil
}

// Revoke moves an ACTIVE sanction to REVOKED. Terminal states are immutable.
func (s *Service) Revoke(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, reason string) (*models.Sanction, error) {
	return s.amend(ctx, sanctionID, operatorID, outbox.EventSanctionRevoked, reason,
		func(sanc *models.Sanction) error {
			sanc.Status = models.StatusRevoked
			return nil
		})
}

// Extend pushes the end of an ACTIVE sanction later.
func (s *Service) Extend(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, newEndAt time.Time, reason string) (*models.Sanction, error) {
	return s.amend(ctx, sanctionID, operatorID, outbox.EventSanctionExtended, reason,
		func(sanc *models.Sanction) error {
			if sanc.EndAt == nil {
				return dErrors.New(dErrors.CodePrecondition, "sanction has no end to extend")
			}
			if !newEndAt.After(*sanc.EndAt) {
				return dErrors.New(dErrors.CodeInvalidInput, "new end_at must be later than the current one")
			}
			sanc.EndAt = &newEndAt
			return nil
		})
}

// Reduce pulls the end of an ACTIVE sanction earlier. A reduced end in the
// past is legal; the sweeper expires it on its next tick.
func (s *Service) Reduce(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, newEndAt time.Time, reason string) (*models.Sanction, error) {
	return s.amend(ctx, sanctionID, operatorID, outbox.EventSanctionReduced, reason,
		func(sanc *models.Sanction) error {
			if sanc.EndAt == nil {
				return dErrors.New(dErrors.CodePrecondition, "sanction has no end to reduce")
			}
			if !newEndAt.Before(*sanc.EndAt) {
				return dErrors.New(dErrors.CodeInvalidInput, "new end_at must be earlier than the current one")
			}
			if newEndAt.Before(sanc.StartAt) {
				return dErrors.New(dErrors.CodeInvalidInput, "end_at precedes start_at")
			}
			sanc.EndAt = &newEndAt
			return nil
		})
}

// amend is the shared mutate-ACTIVE path: load, guard, apply, persist with
// the event in one transaction, invalidate the subject's active set.
func (s *Service) amend(ctx context.Context, sanctionID id.SanctionID, operatorID id.AccountID, eventType, reason string, apply func(*models.Sanction) error) (*models.Sanction, error) {
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity is required")
	}
	sanc, err := s.findSanction(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	if sanc.Status != models.StatusActive {
		return nil, dErrors.New(dErrors.CodePrecondition, "sanction is not active")
	}
	if err := apply(sanc); err != nil {
		return nil, err
	}
	sanc.UpdatedAt = s.now()

	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, sanc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist sanction")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateSanction, sanc.ID.String(),
			eventType, payloadFor(sanc, operatorID, reason)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append sanction event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActive(ctx, sanc.SubjectID)
	s.logger.InfoContext(ctx, "sanction amended",
		"sanction_id", sanc.ID, "event", eventType, "operator_id", operatorID)
	return sanc, nil
}

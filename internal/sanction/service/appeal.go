package service

import (
	"context"

	"girok/internal/outbox"
	"girok/internal/sanction/models"
	id "girok/pkg/domain"
	dErrors "girok/pkg/domain-errors"
)

// SubmitAppeal files the one allowed appeal on an ACTIVE sanction. Only the
// sanctioned subject may file it.
func (s *Service) SubmitAppeal(ctx context.Context, sanctionID id.SanctionID, subjectID id.AccountID, reason string) (*models.Sanction, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "subject identity is required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "appeal reason is required")
	}
	sanc, err := s.findSanction(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	if sanc.SubjectID != subjectID {
		return nil, dErrors.New(dErrors.CodeForbidden, "appeal is limited to the sanctioned subject")
	}
	if sanc.Status != models.StatusActive {
		return nil, dErrors.New(dErrors.CodePrecondition, "sanction is not active")
	}
	if sanc.AppealStatus != models.AppealNone {
		return nil, dErrors.New(dErrors.CodeConflict, "appeal already submitted")
	}

	now := s.now()
	sanc.AppealStatus = models.AppealPending
	sanc.AppealReason = reason
	sanc.AppealedAt = &now
	sanc.UpdatedAt = now

	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, sanc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist appeal")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateSanction, sanc.ID.String(),
			outbox.EventSanctionAppealSubmitted, payloadFor(sanc, subjectID, reason)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append appeal event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActive(ctx, sanc.SubjectID)
	s.logger.InfoContext(ctx, "sanction appeal submitted",
		"sanction_id", sanc.ID, "subject_id", subjectID)
	return sanc, nil
}

// ReviewAppeal advances the appeal. PENDING may only move to UNDER_REVIEW;
// a decision requires UNDER_REVIEW. An APPROVED decision revokes the
// sanction in the same transaction as the decision write and its event.
func (s *Service) ReviewAppeal(ctx context.Context, sanctionID id.SanctionID, reviewerID id.AccountID, decision models.AppealStatus, response string) (*models.Sanction, error) {
	if reviewerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity is required")
	}
	switch decision {
	case models.AppealUnderReview, models.AppealApproved, models.AppealRejected, models.AppealEscalated:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown appeal decision")
	}

	sanc, err := s.findSanction(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	switch {
	case sanc.AppealStatus == models.AppealNone:
		return nil, dErrors.New(dErrors.CodePrecondition, "no appeal on this sanction")
	case sanc.AppealStatus.Decided():
		return nil, dErrors.New(dErrors.CodeConflict, "appeal already decided")
	case decision == models.AppealUnderReview && sanc.AppealStatus != models.AppealPending:
		return nil, dErrors.New(dErrors.CodeConflict, "appeal is already under review")
	case decision != models.AppealUnderReview && sanc.AppealStatus != models.AppealUnderReview:
		return nil, dErrors.New(dErrors.CodePrecondition, "appeal must be under review before a decision")
	}

	now := s.now()
	sanc.AppealStatus = decision
	sanc.ReviewerID = &reviewerID
	sanc.UpdatedAt = now
	if decision.Decided() {
		sanc.ReviewResponse = response
		sanc.ReviewedAt = &now
	}
	if decision == models.AppealApproved {
		if sanc.Status != models.StatusActive {
			return nil, dErrors.New(dErrors.CodePrecondition, "sanction is not active")
		}
		sanc.Status = models.StatusRevoked
	}

	err = s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, sanc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist appeal review")
		}
		if err := s.outbox.Append(ctx, outbox.AggregateSanction, sanc.ID.String(),
			outbox.EventSanctionAppealReviewed, payloadFor(sanc, reviewerID, response)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append appeal review event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActive(ctx, sanc.SubjectID)
	s.logger.InfoContext(ctx, "sanction appeal reviewed",
		"sanction_id", sanc.ID, "decision", decision, "reviewer_id", reviewerID)
	return sanc, nil
}

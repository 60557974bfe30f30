package service

import (
	"context"
	"math"
	"time"

	"girok/internal/consent/models"
	"girok/internal/outbox"
	dErrors "girok/pkg/domain-errors"
)

// Sweep schedule and notice horizon.
const (
	sweepHourUTC  = 2
	noticeHorizon = 30 * 24 * time.Hour
)

// Sweep runs the expiration sweep at 02:00 UTC daily until ctx is cancelled.
func (s *Service) Sweep(ctx context.Context) error {
	for {
		timer := time.NewTimer(time.Until(nextSweepAt(s.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "consent sweep failed", "error", err)
			}
		}
	}
}

func nextSweepAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), sweepHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// SweepOnce emits an expiring-soon notice for every GRANTED consent inside
// the 30-day horizon and expires every consent past its expiry. Notices are
// emitted once per row per call; consumers dedupe on (consent_id, date).
// Expiration is per-row transactional, so a failure mid-batch leaves each
// completed row consistent with its event.
func (s *Service) SweepOnce(ctx context.Context) error {
	now := s.now()

	expiring, err := s.store.ListExpiringWithin(ctx, now, now.Add(noticeHorizon))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list expiring consents")
	}
	for _, consent := range expiring {
		payload := payloadFor(consent)
		payload.DaysUntilExpiry = daysUntil(now, *consent.ExpiresAt)
		err := s.runner.Within(ctx, func(ctx context.Context) error {
			return s.outbox.Append(ctx, outbox.AggregateConsent, consent.ID.String(),
				outbox.EventConsentExpiringSoon, payload)
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append expiring-soon event")
		}
	}

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list due consents")
	}
	for _, consent := range due {
		consent.Status = models.StatusExpired
		consent.UpdatedAt = now
		err := s.runner.Within(ctx, func(ctx context.Context) error {
			if err := s.store.Update(ctx, consent); err != nil {
				return err
			}
			return s.outbox.Append(ctx, outbox.AggregateConsent, consent.ID.String(),
				outbox.EventConsentExpired, payloadFor(consent))
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "expire consent")
		}
		s.invalidateStatus(ctx, consent.AccountID, consent.DocumentID)
	}

	if len(expiring) > 0 || len(due) > 0 {
		s.metrics.SweeperRowsTotal.WithLabelValues("consent").Add(float64(len(due)))
		s.logger.InfoContext(ctx, "consent sweep completed",
			"expiring_soon", len(expiring), "expired", len(due))
	}
	return nil
}

func daysUntil(now, expiresAt time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

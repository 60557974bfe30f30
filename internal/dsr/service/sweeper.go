package service

import (
	"context"
	"time"

	"girok/internal/dsr/models"
	"girok/internal/outbox"
	dErrors "girok/pkg/domain-errors"
)

const (
	escalateInterval = time.Hour
	summaryHourUTC   = 8
)

// Escalate runs the escalation sweep hourly until ctx is cancelled.
func (s *Service) Escalate(ctx context.Context) error {
	ticker := time.NewTicker(escalateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.EscalateOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "dsr escalation sweep failed", "error", err)
			}
		}
	}
}

// EscalateOnce raises the escalation level of open requests whose effective
// deadline has entered a higher tier. Levels never drop, so each tier's event
// fires once per request. Each row commits its level, timestamp, audit row,
// and event in one transaction.
func (s *Service) EscalateOnce(ctx context.Context) error {
	requests, err := s.store.ListOpen(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list open dsr requests")
	}
	now := s.now()

	var escalated int
	for _, request := range requests {
		level := models.LevelFor(request.EffectiveDeadline().Sub(now))
		if level.Rank() <= request.EscalationLevel.Rank() {
			continue
		}
		request.EscalationLevel = level
		request.EscalatedAt = &now
		request.UpdatedAt = now
		err := s.runner.Within(ctx, func(ctx context.Context) error {
			if err := s.store.Update(ctx, request); err != nil {
				return err
			}
			details := map[string]any{"level": level}
			if err := s.appendLog(ctx, request.ID, actionEscalated, nil, details, ""); err != nil {
				return err
			}
			return s.outbox.Append(ctx, outbox.AggregateDSR, request.ID.String(),
				eventForLevel(level), payloadFor(request))
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "escalate dsr request")
		}
		s.invalidate(ctx, request.ID)
		escalated++
	}

	if escalated > 0 {
		s.metrics.SweeperRowsTotal.WithLabelValues("dsr").Add(float64(escalated))
		s.logger.InfoContext(ctx, "dsr requests escalated", "count", escalated)
	}
	return nil
}

func eventForLevel(level models.EscalationLevel) string {
	switch level {
	case models.EscalationCritical:
		return outbox.EventDSRDeadlineCritical
	case models.EscalationOverdue:
		return outbox.EventDSRDeadlineOverdue
	}
	return outbox.EventDSRDeadlineWarning
}

// RunDailySummary emits the daily summary at 08:00 UTC until ctx is
// cancelled.
func (s *Service) RunDailySummary(ctx context.Context) error {
	for {
		timer := time.NewTimer(time.Until(nextSummaryAt(s.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := s.EmitDailySummary(ctx); err != nil {
				s.logger.ErrorContext(ctx, "dsr daily summary failed", "error", err)
			}
		}
	}
}

func nextSummaryAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), summaryHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// EmitDailySummary publishes the observational counts. Nothing is persisted
// beyond the outbox row.
func (s *Service) EmitDailySummary(ctx context.Context) error {
	now := s.now()
	stats, err := s.store.Statistics(ctx, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "dsr statistics")
	}
	err = s.runner.Within(ctx, func(ctx context.Context) error {
		return s.outbox.Append(ctx, outbox.AggregateDSR, now.Format("2006-01-02"),
			outbox.EventDSRDailySummary, stats)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append daily summary event")
	}
	s.logger.InfoContext(ctx, "dsr daily summary emitted",
		"pending", stats.Pending, "in_progress", stats.InProgress,
		"approaching", stats.Approaching, "overdue", stats.Overdue)
	return nil
}

package service

import (
	"context"
	"time"
)

// Sweep runs the expiration sweep until ctx is cancelled. One minute keeps
// expiration close to end_at without hammering the store.
func (s *Service) Sweep(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sanction sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce bulk-expires ACTIVE sanctions whose end has passed. Expiration
// emits no event; it is derivable from end_at plus prior state. The count is
// logged and counted, and affected subjects lose their cached active set.
func (s *Service) SweepOnce(ctx context.Context) error {
	subjects, err := s.store.ExpireDue(ctx, s.now())
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		return nil
	}
	for _, subjectID := range subjects {
		s.invalidateActive(ctx, subjectID)
	}
	s.metrics.SweeperRowsTotal.WithLabelValues("sanction").Add(float64(len(subjects)))
	s.logger.InfoContext(ctx, "sanctions expired", "count", len(subjects))
	return nil
}

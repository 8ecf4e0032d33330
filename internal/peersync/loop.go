package peersync

import (
	"context"
	"time"
)

// Loop runs the auto sync until ctx is cancelled: a short initial
// delay, then one pass per interval. A pass still in flight when the
// ticker fires is never overlapped.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(3 * time.Second):
	}
	s.runAuto(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAuto(ctx)
		}
	}
}

func (s *Service) runAuto(ctx context.Context) {
	results, totals, err := s.Sync(ctx, SyncParams{Source: SourceAuto})
	if err != nil {
		s.logger.Error("auto peer sync failed", "error", err)
		return
	}
	if totals.TotalChanges > 0 || totals.Failed > 0 {
		s.logger.Info("auto peer sync",
			"peers", len(results),
			"success", totals.Success,
			"failed", totals.Failed,
			"totalChanges", totals.TotalChanges)
	}
}

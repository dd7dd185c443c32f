package run

import (
	"context"
	"time"

	"golang.org/x/exp/slog"
)

// Scheduler triggers a run right away and then once every interval until ctx
// is cancelled.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(coord *Coordinator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		coord:    coord,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	// errors are logged by the coordinator and kept in the last report
	_, _ = s.coord.RunOnce(ctx, time.Now())
}

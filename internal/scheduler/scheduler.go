package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"feedsync/internal/domain"
)

// Refresher is the interface for the scheduled refresh operation.
type Refresher interface {
	RefreshAll(ctx context.Context) (*domain.RefreshReport, error)
}

// Scheduler fires RefreshAll on a cron spec (four times daily by
// default). The trigger is fire-and-forget: a skipped or repeated run
// costs nothing beyond the per-feed idle-skip.
type Scheduler struct {
	refresher Refresher
	spec      string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewScheduler(refresher Refresher, spec string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		spec:      spec,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start runs one refresh immediately, then on the cron spec until ctx
// is cancelled. Blocks until shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "spec", s.spec)

	s.runRefresh(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() {
		s.runRefresh(ctx)
	}); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	stop := c.Stop()
	<-stop.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.refresher.RefreshAll(refreshCtx)
	if err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}
	if len(report.Errors) > 0 || report.ChannelsFailed > 0 {
		s.logger.Warn("scheduled refresh finished with errors",
			"failed_feeds", len(report.Errors),
			"failed_channels", report.ChannelsFailed,
		)
	}
}

package task

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// staleAfter is how long a job may stay running before the sweep fails it.
const staleAfter = time.Hour

// Scheduler sweeps jobs abandoned by dead workers once a day.
type Scheduler struct {
	service *Service
	hour    int
	minute  int
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{service: svc, hour: 1}
}

// StartScheduler runs the sweep loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started stale job sweep")

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.sweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()

	n, err := s.service.FailStaleJobs(ctx, staleAfter)
	if err != nil {
		zap.L().Error("[Scheduler] failed to sweep stale jobs", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished stale job sweep",
		zap.Int64("failed_jobs", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime is the next occurrence of hour:minute after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

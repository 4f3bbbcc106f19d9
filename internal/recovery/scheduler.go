package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewScheduler(interval time.Duration, logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, interval: interval, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every loop has observed ctx cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := job.Run(ctx)
		if err != nil {
			s.logger.Error("recovery claim failed", "job", job.Name(), "err", err)
			continue
		}
		if report.Claimed > 0 {
			s.logger.Info("recovery run finished", "job", job.Name(),
				"claimed", report.Claimed, "processed", report.Processed, "failed", report.Failed)
		}
	}
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/khiwniti/beta-bitebase/internal/logging"
)

// Job is a unit of scheduled work. It receives a context bounded by the job
// timeout and cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler manages cron jobs for background maintenance
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler creates a scheduler whose jobs run at most timeout each
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logging.WithComponent("scheduler"),
	}
}

// Add schedules job under a cron spec such as "@every 1m" or "0 3 * * *"
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.logger.Info("Scheduled job", "job", name, "spec", spec)
	return nil
}

// RunNow executes job once, synchronously, with the scheduler's timeout
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Warn("Scheduled job failed", "job", name, "elapsed", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("Scheduled job completed", "job", name, "elapsed", time.Since(start))
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/valeevte/PriceTracker/internal/logger"
)

const DefaultInterval = 24 * time.Hour

// Outcome is what a job reports about the work it did.
type Outcome struct {
	RunID   string
	Saved   int
	Skipped int
}

// Job is one unit of scheduled work.
type Job func(ctx context.Context) (Outcome, error)

type Config struct {
	Interval time.Duration
}

// RunReport describes a finished job run.
type RunReport struct {
	Seq        int
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Saved      int
	Skipped    int
	Err        error
}

// Scheduler runs a job once at start and then again each time Interval has
// elapsed since the previous run finished, so runs never overlap.
type Scheduler struct {
	job      Job
	interval time.Duration
	log      *logger.Logger
	reports  chan RunReport
}

func New(job Job, cfg Config, log *logger.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		job:      job,
		interval: interval,
		log:      log.With("component", "scheduler"),
		reports:  make(chan RunReport, 1),
	}
}

// Reports delivers a report after every run. Reports are dropped while the
// previous one is still unread.
func (s *Scheduler) Reports() <-chan RunReport {
	return s.reports
}

// Run blocks until ctx is cancelled. A run in flight when ctx is cancelled
// is allowed to return before Run does.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.reports)

	s.log.Info("scheduler: started", "interval", s.interval.String())
	if ctx.Err() != nil {
		return nil
	}

	seq := 1
	s.runOnce(ctx, seq)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopping due to context cancelled")
			return nil
		case <-timer.C:
			seq++
			s.runOnce(ctx, seq)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, seq int) {
	rep := RunReport{Seq: seq, StartedAt: time.Now()}
	out, err := s.safeRun(ctx)
	rep.FinishedAt = time.Now()
	rep.RunID, rep.Saved, rep.Skipped, rep.Err = out.RunID, out.Saved, out.Skipped, err

	if rep.Err != nil {
		s.log.Error("scheduler: run failed", "seq", seq, "run_id", rep.RunID, "error", rep.Err)
	} else {
		s.log.Debug("scheduler: run completed", "seq", seq, "run_id", rep.RunID, "took", rep.FinishedAt.Sub(rep.StartedAt).String())
	}

	select {
	case s.reports <- rep:
	default:
	}
}

func (s *Scheduler) safeRun(ctx context.Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			s.log.Error("scheduler: recovered panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return s.job(ctx)
}

// Package scheduler drives the pipeline on a fixed interval. Each tick runs
// download then the first phase; the second phase runs only when configured
// to auto-continue, otherwise an operator triggers it over HTTP.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"regsync/internal/process"
)

// Scheduler owns the periodic trigger of the pipeline.
type Scheduler struct {
	proc         *process.Process
	interval     time.Duration
	autoContinue bool
	logger       *slog.Logger
}

func New(proc *process.Process, interval time.Duration, autoContinue bool, logger *slog.Logger) *Scheduler {
	return &Scheduler{proc: proc, interval: interval, autoContinue: autoContinue, logger: logger}
}

// Run ticks until ctx is cancelled. Ticks never overlap: a tick that finds
// the pipeline busy is turned into an aborted outcome by the stage guards.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "auto_continue", s.autoContinue)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	status, err := s.proc.DownloadAndUnzip(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled download failed", "error", err)
		return
	}
	if status != process.StatusContinue {
		s.logger.InfoContext(ctx, "scheduled run stopped after download", "status", status.Message())
		return
	}

	if status = s.proc.RunFirst(ctx); status != process.StatusContinue {
		s.logger.InfoContext(ctx, "scheduled run stopped after diff", "status", status.Message())
		return
	}

	if !s.autoContinue {
		s.logger.InfoContext(ctx, "diff ready, waiting for operator to continue")
		return
	}
	if status = s.proc.RunContinue(ctx); status != process.StatusContinue {
		s.logger.InfoContext(ctx, "scheduled run stopped during upload phase", "status", status.Message())
	}
}

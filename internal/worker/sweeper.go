// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable removes expired records and reports how many it removed.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired tokens and verification challenges.
// Nothing depends on it running on time; every read path re-checks expiry.
type Sweeper struct {
	jobs     map[string]Sweepable
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper running every job once per interval. jobs is
// keyed by a name used in logs.
func NewSweeper(jobs map[string]Sweepable, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for name, job := range s.jobs {
		start := time.Now()
		n, err := job.SweepExpired(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "expired records swept",
				slog.String("job", name),
				slog.Int64("deleted", n),
				slog.Duration("took", time.Since(start)),
			)
		}
	}
}

package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper bounds retention of revoked records.
//
// Reuse detection only requires a revoked record to be findable while the
// presented secret is still inside its validity window, so records that are
// both revoked and long past expiry can be deleted without weakening the
// detection invariant.
type Sweeper struct {
	store     Store
	log       *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	retention time.Duration
}

// NewSweeper constructs a Sweeper from config.
func NewSweeper(cfg Config, store Store, log *slog.Logger, metrics *Metrics) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store:     store,
		log:       log,
		metrics:   metrics,
		interval:  cfg.SweepInterval,
		retention: cfg.SweepRetention,
	}
}

// Run loops until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.RunOnce(ctx, time.Now().UTC())
		}
	}
}

// RunOnce deletes revoked records whose expiry is older than the retention
// window.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.retention)

	n, err := s.store.DeleteExpiredRevoked(ctx, cutoff)
	if err != nil {
		s.log.Error("auth.sweep.fail", "err", err)
		return
	}
	if n > 0 {
		s.log.Info("auth.sweep.deleted", "count", n)
		if s.metrics != nil {
			s.metrics.SweepDeleted.Add(float64(n))
		}
	}
}

package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type attemptStore interface {
	TimeoutStalePending(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type qrFlagStore interface {
	ClearStaleQRFlags(ctx context.Context, cutoff time.Time) (int64, error)
}

type clientSweeper interface {
	Sweep(ctx context.Context) int
}

// Job is the periodic janitor: abandoned login attempts become timeouts,
// stale qr_login_active flags are cleared, old audit rows are purged, and
// idle client connections are closed.
type Job struct {
	attempts         attemptStore
	users            qrFlagStore
	sweeper          clientSweeper
	staleAfter       time.Duration
	attemptRetention time.Duration
	now              func() time.Time
	logger           *zap.Logger
}

func New(attempts attemptStore, users qrFlagStore, staleAfter, attemptRetention time.Duration, logger *zap.Logger) *Job {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if attemptRetention <= 0 {
		attemptRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		attempts:         attempts,
		users:            users,
		staleAfter:       staleAfter,
		attemptRetention: attemptRetention,
		now:              time.Now,
		logger:           logger,
	}
}

func (j *Job) AttachSweeper(sweeper clientSweeper) {
	j.sweeper = sweeper
}

func (j *Job) Run(ctx context.Context) error {
	staleCutoff := j.now().Add(-j.staleAfter)

	if j.attempts != nil {
		timedOut, err := j.attempts.TimeoutStalePending(ctx, staleCutoff)
		if err != nil {
			return fmt.Errorf("timeout stale auth attempts: %w", err)
		}
		if timedOut > 0 {
			j.logger.Info("stale auth attempts timed out", zap.Int64("count", timedOut))
		}

		purged, err := j.attempts.PurgeFinishedBefore(ctx, j.now().Add(-j.attemptRetention))
		if err != nil {
			return fmt.Errorf("purge finished auth attempts: %w", err)
		}
		if purged > 0 {
			j.logger.Info("old auth attempts purged", zap.Int64("count", purged))
		}
	}

	if j.users != nil {
		cleared, err := j.users.ClearStaleQRFlags(ctx, staleCutoff)
		if err != nil {
			return fmt.Errorf("clear stale qr flags: %w", err)
		}
		if cleared > 0 {
			j.logger.Info("stale qr login flags cleared", zap.Int64("count", cleared))
		}
	}

	if j.sweeper != nil {
		if evicted := j.sweeper.Sweep(ctx); evicted > 0 {
			j.logger.Info("idle telegram clients evicted", zap.Int("count", evicted))
		}
	}

	return nil
}

// RunPeriodically blocks until the context is cancelled, running the job on
// the given interval.
func (j *Job) RunPeriodically(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup run failed", zap.Error(err))
			}
		}
	}
}

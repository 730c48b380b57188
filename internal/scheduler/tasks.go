package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/socialbot/follower-tracker/internal/tracker"
)

const (
	TaskFollowerCheck     = "follower_check"
	TaskSessionCacheSweep = "session_cache_sweep"
)

type followerChecker interface {
	CheckAll(ctx context.Context) (tracker.CheckResult, error)
}

type revokedSweeper interface {
	SweepRevoked(ctx context.Context, window time.Duration) (int, error)
}

func FollowerCheckTask(checker followerChecker, interval time.Duration) Task {
	return Task{
		Name:        TaskFollowerCheck,
		Description: "poll follower counts and raise threshold alerts",
		Interval:    interval,
		Handler: func(ctx context.Context) error {
			_, err := checker.CheckAll(ctx)
			return err
		},
	}
}

// SessionCacheSweepTask re-invalidates cache entries of sessions revoked since the last
// successful sweep, plus one interval of overlap. The first run, and any run after a long
// outage, reaches back lookback, the longest a stale entry can still authenticate.
// A zero lookback leaves the window unbounded.
func SessionCacheSweepTask(sweeper revokedSweeper, interval, lookback time.Duration, logger *slog.Logger) Task {
	return sessionCacheSweepTask(sweeper, interval, lookback, logger, time.Now)
}

func sessionCacheSweepTask(sweeper revokedSweeper, interval, lookback time.Duration, logger *slog.Logger, now func() time.Time) Task {
	var (
		mu          sync.Mutex
		lastSuccess time.Time
	)
	window := func(started time.Time) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		if lastSuccess.IsZero() {
			if lookback > 0 {
				return lookback
			}
			return started.Sub(time.Time{})
		}
		w := max(started.Sub(lastSuccess)+interval, 2*interval)
		if lookback > 0 && w > lookback {
			w = lookback
		}
		return w
	}
	return Task{
		Name:        TaskSessionCacheSweep,
		Description: "drop cache entries of recently revoked sessions",
		Interval:    interval,
		Handler: func(ctx context.Context) error {
			started := now()
			n, err := sweeper.SweepRevoked(ctx, window(started))
			if err != nil {
				return err
			}
			mu.Lock()
			if started.After(lastSuccess) {
				lastSuccess = started
			}
			mu.Unlock()
			if n > 0 {
				logger.InfoContext(ctx, "session cache sweep", "invalidated", n)
			}
			return nil
		},
	}
}

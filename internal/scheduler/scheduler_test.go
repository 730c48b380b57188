package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socialbot/follower-tracker/internal/tracker"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingChecker struct{ calls atomic.Int32 }

func (c *countingChecker) CheckAll(context.Context) (tracker.CheckResult, error) {
	c.calls.Add(1)
	return tracker.CheckResult{}, nil
}

type recordingSweeper struct {
	window atomic.Int64
	n      int
	err    error
}

func (s *recordingSweeper) SweepRevoked(_ context.Context, window time.Duration) (int, error) {
	s.window.Store(int64(window))
	return s.n, s.err
}

func TestServiceRunsRegisteredTasks(t *testing.T) {
	svc := NewService(discardLogger())
	checker := &countingChecker{}
	if err := svc.Register(FollowerCheckTask(checker, 50*time.Millisecond)); err != nil {
		t.Fatalf("register: %v", err)
	}
	svc.Start()
	defer svc.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for checker.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if checker.calls.Load() < 2 {
		t.Fatalf("expected repeated runs, got %d", checker.calls.Load())
	}
}

func TestServiceRejectsDuplicateAndInvalidTasks(t *testing.T) {
	svc := NewService(discardLogger())
	task := FollowerCheckTask(&countingChecker{}, time.Minute)
	if err := svc.Register(task); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Register(task); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := svc.Register(Task{Name: "bad", Handler: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected zero interval to fail")
	}
	if got := svc.Tasks(); len(got) != 1 || got[0].Name != TaskFollowerCheck {
		t.Fatalf("unexpected tasks: %+v", got)
	}
}

func TestRunNowAndSweepWindow(t *testing.T) {
	svc := NewService(discardLogger())
	sweeper := &recordingSweeper{n: 3}
	if err := svc.Register(SessionCacheSweepTask(sweeper, time.Minute, time.Hour, discardLogger())); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RunNow(context.Background(), TaskSessionCacheSweep); err != nil {
		t.Fatalf("run now: %v", err)
	}
	if got := time.Duration(sweeper.window.Load()); got != time.Hour {
		t.Fatalf("expected first sweep to reach back the full lookback, got %s", got)
	}
	if err := svc.RunNow(context.Background(), TaskSessionCacheSweep); err != nil {
		t.Fatalf("run now: %v", err)
	}
	if got := time.Duration(sweeper.window.Load()); got != 2*time.Minute {
		t.Fatalf("expected two-interval window, got %s", got)
	}

	sweeper.err = errors.New("store down")
	if err := svc.RunNow(context.Background(), TaskSessionCacheSweep); err == nil {
		t.Fatal("expected sweep error to surface")
	}
	if err := svc.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown task error")
	}
}

func TestSessionCacheSweepCoversGapSinceLastSuccess(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	sweeper := &recordingSweeper{}
	task := sessionCacheSweepTask(sweeper, time.Minute, 24*time.Hour, discardLogger(), now)
	ctx := context.Background()

	if err := task.Handler(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// The store is unreachable for three hours; every run in between fails.
	sweeper.err = errors.New("store down")
	for i := 0; i < 180; i++ {
		clock = clock.Add(time.Minute)
		if err := task.Handler(ctx); err == nil {
			t.Fatal("expected sweep error to surface")
		}
	}
	sweeper.err = nil
	clock = clock.Add(time.Minute)
	if err := task.Handler(ctx); err != nil {
		t.Fatalf("recovered sweep: %v", err)
	}
	if got := time.Duration(sweeper.window.Load()); got != 182*time.Minute {
		t.Fatalf("expected window to span the outage, got %s", got)
	}

	clock = clock.Add(time.Minute)
	if err := task.Handler(ctx); err != nil {
		t.Fatalf("steady sweep: %v", err)
	}
	if got := time.Duration(sweeper.window.Load()); got != 2*time.Minute {
		t.Fatalf("expected window to shrink back, got %s", got)
	}

	sweeper.err = errors.New("store down")
	clock = clock.Add(48 * time.Hour)
	_ = task.Handler(ctx)
	if got := time.Duration(sweeper.window.Load()); got != 24*time.Hour {
		t.Fatalf("expected window capped at lookback, got %s", got)
	}
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is a recurring job. Handler receives a context cancelled when the scheduler stops.
type Task struct {
	Name        string
	Description string
	Interval    time.Duration
	Handler     func(ctx context.Context) error
}

type Service struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger

	mu    sync.RWMutex
	tasks map[string]Task
}

func NewService(logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	// A slow run is never overlapped by the next tick of the same job.
	s.SingletonModeAll()
	return &Service{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		tasks:     make(map[string]Task),
	}
}

func (s *Service) Register(task Task) error {
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %s already registered", task.Name)
	}
	if _, err := s.scheduler.Every(task.Interval).Tag(task.Name).Do(s.run, task); err != nil {
		return fmt.Errorf("schedule task %s: %w", task.Name, err)
	}
	s.tasks[task.Name] = task
	s.logger.Info("scheduled task registered", "task", task.Name, "interval", task.Interval.String())
	return nil
}

func (s *Service) run(task Task) {
	started := time.Now()
	if err := task.Handler(s.ctx); err != nil {
		s.logger.Error("scheduled task failed", "task", task.Name, "error", err, "duration_ms", time.Since(started).Milliseconds())
		return
	}
	s.logger.Debug("scheduled task completed", "task", task.Name, "duration_ms", time.Since(started).Milliseconds())
}

// RunNow executes a registered task synchronously, outside the schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	task, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	return task.Handler(ctx)
}

func (s *Service) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) Start() {
	s.logger.Info("scheduler starting", "tasks", len(s.Tasks()))
	s.scheduler.StartAsync()
}

func (s *Service) Stop() {
	s.scheduler.Stop()
	s.cancel()
	s.logger.Info("scheduler stopped")
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/scheduler"
)

// Closer releases pooled resources (database, redis) once the server has drained.
type Closer func() error

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	DB            *gorm.DB
	Scheduler     *scheduler.Service
	Observability *observability.Runtime

	ShutdownTimeout time.Duration
	closeResources  Closer
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, db *gorm.DB, sched *scheduler.Service, runtime *observability.Runtime, closeResources Closer) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		DB:              db,
		Scheduler:       sched,
		Observability:   runtime,
		ShutdownTimeout: timeout,
		closeResources:  closeResources,
	}
}

// Run serves HTTP and runs scheduled tasks until ctx is cancelled or the server fails, then
// shuts everything down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown drains HTTP first so in-flight requests can still reach the stores, then stops the
// scheduler, releases pools and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.closeResources != nil {
		if err := a.closeResources(); err != nil {
			errs = append(errs, fmt.Errorf("close resources: %w", err))
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	if len(errs) == 0 {
		a.Logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}

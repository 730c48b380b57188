package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres or SQLite depending on the shape of DATABASE_URL.
func Open(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.DBLogQuery {
		level = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger:               logger.Default.LogMode(level),
		NowFunc:              func() time.Time { return time.Now().UTC() },
		DisableAutomaticPing: true,
	}

	var dialector gorm.Dialector
	driver := "sqlite"
	if cfg.UsesPostgres() {
		dialector = postgres.Open(cfg.DatabaseURL)
		driver = "postgres"
	} else {
		dialector = sqlite.Open(cfg.DatabaseURL)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	log.Info("database connected", "driver", driver)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.Track{}, &domain.FollowerHistory{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WaitReady pings db once a second until it answers, ctx ends or maxWait elapses.
// A non-positive maxWait allows a single attempt.
func WaitReady(ctx context.Context, db *gorm.DB, maxWait time.Duration, log *slog.Logger) error {
	return waitReady(ctx, func(ctx context.Context) error { return Ping(ctx, db) }, maxWait, time.Second, log)
}

func waitReady(ctx context.Context, ping func(context.Context) error, maxWait, every time.Duration, log *slog.Logger) error {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(every)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("database not ready, retrying", "error", err, "retry_in", next)
		}),
	}
	if maxWait > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(maxWait))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		return struct{}{}, ping(pingCtx)
	}, opts...)
	if err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

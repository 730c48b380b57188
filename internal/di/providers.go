package di

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/socialbot/follower-tracker/internal/app"
	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/database"
	"github.com/socialbot/follower-tracker/internal/health"
	"github.com/socialbot/follower-tracker/internal/http/handler"
	"github.com/socialbot/follower-tracker/internal/http/middleware"
	"github.com/socialbot/follower-tracker/internal/http/router"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/scheduler"
	"github.com/socialbot/follower-tracker/internal/security"
	"github.com/socialbot/follower-tracker/internal/service"
	"github.com/socialbot/follower-tracker/internal/tracker"
)

// Core is the service graph without the HTTP server, used by one-shot CLI commands.
type Core struct {
	Config   *config.Config
	DB       *gorm.DB
	Users    *service.UserService
	Sessions *service.SessionService
	Checker  *tracker.Checker
	Close    app.Closer
}

// ProvideDB opens the database and blocks until it answers a ping or DB_WAIT_TIMEOUT elapses.
func ProvideDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.WaitReady(ctx, db, cfg.DBWaitTimeout, logger); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

// ProvideRedisClient returns nil when Redis is disabled; consumers then fall back to in-process stores.
func ProvideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideSessionCache(cfg *config.Config, client redis.UniversalClient) service.SessionCache {
	if client == nil {
		return service.NewInMemorySessionCache()
	}
	return service.NewRedisSessionCache(client, cfg.RedisPrefix)
}

func ProvideRevokedMarker(cfg *config.Config, client redis.UniversalClient) service.RevokedMarker {
	if client == nil {
		return service.NewInMemoryRevokedMarker()
	}
	return service.NewRedisRevokedMarker(client, cfg.RedisPrefix+":revoked")
}

func ProvideCloser(db *gorm.DB, client redis.UniversalClient) app.Closer {
	return func() error {
		var errs []error
		if client != nil {
			if err := client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := database.Close(db); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
}

func ProvideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func ProvideSessionManagerOptions(cfg *config.Config) service.SessionManagerOptions {
	return service.SessionManagerOptions{
		CacheTTL:          cfg.SessionCacheTTL,
		CacheTimeout:      cfg.CacheTimeout,
		StoreTimeout:      cfg.StoreTimeout,
		InvalidateRetries: cfg.CacheInvalidateRetries,
		RevokedMarkerTTL:  max(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	}
}

func ProvideSessionManager(sessions repository.SessionRepository, cache service.SessionCache, marker service.RevokedMarker, opts service.SessionManagerOptions, logger *slog.Logger) *service.SessionManager {
	return service.NewSessionManager(sessions, cache, opts, logger).WithRevokedMarker(marker)
}

func ProvideAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	manager *service.SessionManager,
	verifier *service.TokenVerifier,
	jwt *security.JWTManager,
	logger *slog.Logger,
) (*service.AuthService, error) {
	return service.NewAuthService(users, sessions, manager, verifier, jwt, service.AuthOptions{
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		StoreTimeout: cfg.StoreTimeout,
	}, cfg.BcryptCost, logger)
}

func ProvideUserService(cfg *config.Config, users repository.UserRepository, manager *service.SessionManager, logger *slog.Logger) *service.UserService {
	return service.NewUserService(users, manager, cfg.BcryptCost, cfg.StoreTimeout, logger)
}

func ProvideSessionService(cfg *config.Config, sessions repository.SessionRepository, manager *service.SessionManager) *service.SessionService {
	return service.NewSessionService(sessions, manager, cfg.StoreTimeout)
}

func ProvideTrackService(cfg *config.Config, tracks repository.TrackRepository, logger *slog.Logger) *service.TrackService {
	return service.NewTrackService(tracks, cfg.StoreTimeout, logger)
}

func ProvideFetcher(ctx context.Context, cfg *config.Config) tracker.Fetcher {
	if cfg.FollowerUseMockData {
		return tracker.NewMockFetcher()
	}
	return tracker.NewHTTPFetcher(ctx, tracker.HTTPFetcherConfig{
		BaseURL:      cfg.SocialAPIBaseURL,
		ClientID:     cfg.SocialOAuthClientID,
		ClientSecret: cfg.SocialOAuthClientSecret,
		TokenURL:     cfg.SocialOAuthTokenURL,
	})
}

func ProvideNotifier(cfg *config.Config, logger *slog.Logger) tracker.Notifier {
	if cfg.TelegramToken == "" {
		return tracker.NewLoggingNotifier(logger)
	}
	return tracker.NewTelegramNotifier(cfg.TelegramAPIBaseURL, cfg.TelegramToken, 10*time.Second)
}

func ProvideChecker(cfg *config.Config, tracks repository.TrackRepository, users repository.UserRepository, fetcher tracker.Fetcher, notifier tracker.Notifier, logger *slog.Logger) *tracker.Checker {
	return tracker.NewChecker(tracks, users, fetcher, notifier, cfg.TelegramDefaultChatID, cfg.FollowerFetchConcurrency, logger)
}

func ProvideScheduler(cfg *config.Config, checker *tracker.Checker, sessions *service.SessionService, logger *slog.Logger) (*scheduler.Service, error) {
	s := scheduler.NewService(logger)
	if err := s.Register(scheduler.FollowerCheckTask(checker, cfg.FollowerCheckInterval)); err != nil {
		return nil, err
	}
	if err := s.Register(scheduler.SessionCacheSweepTask(sessions, cfg.SessionCacheSweepInterval, SweepLookback(cfg), logger)); err != nil {
		return nil, err
	}
	return s, nil
}

// SweepLookback bounds how far back a cache sweep reaches: a cached entry outlives neither its
// cache TTL nor the longest-lived token bound to the session.
func SweepLookback(cfg *config.Config) time.Duration {
	lookback := max(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if cfg.SessionCacheTTL > 0 && cfg.SessionCacheTTL < lookback {
		lookback = cfg.SessionCacheTTL
	}
	return lookback
}

func ProvideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.DBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.RedisChecker(client))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

// ProvideAuthRateLimiter shares counters through Redis when it is enabled. A Redis outage
// lets auth traffic through rather than locking every user out.
func ProvideAuthRateLimiter(cfg *config.Config, client redis.UniversalClient) router.AuthRateLimiterFunc {
	if client == nil {
		return middleware.NewRateLimiter(cfg.AuthRateLimitRPM, time.Minute).Middleware()
	}
	limiter := middleware.NewRedisLimiter(client, cfg.RedisPrefix+":rate_limit")
	return middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, middleware.FailOpen, "auth").Middleware()
}

func ProvideAuthHandler(auth *service.AuthService) *handler.AuthHandler {
	return handler.NewAuthHandler(auth)
}

func ProvideUserHandler(users *service.UserService, sessions *service.SessionService) *handler.UserHandler {
	return handler.NewUserHandler(users, sessions)
}

func ProvideTrackHandler(tracks *service.TrackService) *handler.TrackHandler {
	return handler.NewTrackHandler(tracks)
}

func ProvideStatsHandler(stats *tracker.Stats) *handler.StatsHandler {
	return handler.NewStatsHandler(stats)
}

func ProvideRouter(
	cfg *config.Config,
	auth *service.AuthService,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	trackHandler *handler.TrackHandler,
	statsHandler *handler.StatsHandler,
	authLimiter router.AuthRateLimiterFunc,
	readiness *health.ProbeRunner,
	logger *slog.Logger,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:      authHandler,
		UserHandler:      userHandler,
		TrackHandler:     trackHandler,
		StatsHandler:     statsHandler,
		Validator:        auth,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		AuthRateLimiter:  authLimiter,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELHTTPEnabled,
		Logger:           logger,
	})
}

func ProvideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/socialbot/follower-tracker/internal/app"
	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/service"
	"github.com/socialbot/follower-tracker/internal/tracker"
)

var storeSet = wire.NewSet(
	ProvideDB,
	ProvideRedisClient,
	ProvideSessionCache,
	ProvideRevokedMarker,
	ProvideCloser,
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewTrackRepository,
)

var serviceSet = wire.NewSet(
	ProvideJWTManager,
	ProvideSessionManagerOptions,
	ProvideSessionManager,
	service.NewTokenVerifier,
	ProvideAuthService,
	ProvideUserService,
	ProvideSessionService,
	ProvideTrackService,
)

var trackerSet = wire.NewSet(
	ProvideFetcher,
	ProvideNotifier,
	ProvideChecker,
	tracker.NewStats,
)

var httpSet = wire.NewSet(
	ProvideReadiness,
	ProvideAuthRateLimiter,
	ProvideAuthHandler,
	ProvideUserHandler,
	ProvideTrackHandler,
	ProvideStatsHandler,
	ProvideRouter,
	ProvideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*app.App, error) {
	wire.Build(storeSet, serviceSet, trackerSet, httpSet, ProvideScheduler, app.New)
	return nil, nil
}

func InitializeCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	wire.Build(storeSet, serviceSet, trackerSet, wire.Struct(new(Core), "*"))
	return nil, nil
}

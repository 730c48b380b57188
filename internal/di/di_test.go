package di

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/database"
	"github.com/socialbot/follower-tracker/internal/scheduler"
	"github.com/socialbot/follower-tracker/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPAddr:                  "127.0.0.1:0",
		DatabaseURL:               "file:" + t.Name() + "?mode=memory&cache=shared",
		RedisPrefix:               "session_cache",
		JWTSecret:                 "0123456789abcdef0123456789abcdef",
		JWTIssuer:                 "follower-tracker",
		JWTAudience:               "follower-tracker-api",
		AccessTokenTTL:            time.Hour,
		RefreshTokenTTL:           2 * time.Hour,
		BcryptCost:                4,
		SessionCacheTTL:           time.Hour,
		SessionCacheSweepInterval: time.Minute,
		CacheTimeout:              100 * time.Millisecond,
		StoreTimeout:              time.Second,
		CacheInvalidateRetries:    2,
		AuthRateLimitRPM:          100,
		FollowerCheckInterval:     time.Minute,
		FollowerUseMockData:       true,
		FollowerFetchConcurrency:  2,
		ShutdownTimeout:           time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeCoreWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	core, err := InitializeCore(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("initialize core: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	if err := database.Migrate(core.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user, err := core.Users.Register(context.Background(), service.RegisterInput{
		Username: "cli-user",
		Email:    "cli@example.com",
		Password: "long enough",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	n, err := core.Sessions.RevokeAllForUser(context.Background(), user.ID, "admin_revoke")
	if err != nil || n != 0 {
		t.Fatalf("expected no sessions to revoke, got %d %v", n, err)
	}
	if _, err := core.Checker.CheckAll(context.Background()); err != nil {
		t.Fatalf("check all: %v", err)
	}
}

func TestInitializeAppWiresRouterAndScheduler(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisEnabled = true
	cfg.RedisAddr = mr.Addr()

	a, err := InitializeApp(context.Background(), cfg, discardLogger(), nil)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready with db and redis up, got %d %s", rr.Code, rr.Body.String())
	}

	names := map[string]bool{}
	for _, task := range a.Scheduler.Tasks() {
		names[task.Name] = true
	}
	if !names[scheduler.TaskFollowerCheck] || !names[scheduler.TaskSessionCacheSweep] {
		t.Fatalf("expected both scheduled tasks, got %v", names)
	}

	mr.Close()
	rr = httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", rr.Code)
	}
}

func TestSweepLookback(t *testing.T) {
	cfg := testConfig(t)
	if got := SweepLookback(cfg); got != time.Hour {
		t.Fatalf("expected cache TTL to bound lookback, got %s", got)
	}
	cfg.SessionCacheTTL = 0
	if got := SweepLookback(cfg); got != 2*time.Hour {
		t.Fatalf("expected longest token TTL without a cache TTL, got %s", got)
	}
	cfg.SessionCacheTTL = 12 * time.Hour
	if got := SweepLookback(cfg); got != 2*time.Hour {
		t.Fatalf("expected longest token TTL below cache TTL, got %s", got)
	}
}

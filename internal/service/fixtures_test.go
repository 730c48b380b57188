package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/security"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type authFixture struct {
	db       *gorm.DB
	users    repository.UserRepository
	sessions repository.SessionRepository
	tracks   repository.TrackRepository
	cache    SessionCache
	manager  *SessionManager
	verifier *TokenVerifier
	jwt      *security.JWTManager
	auth     *AuthService
	session  *SessionService
	user     *UserService
}

func newAuthFixture(t *testing.T, cache SessionCache) *authFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.Track{}, &domain.FollowerHistory{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := SessionManagerOptions{
		CacheTTL:          time.Hour,
		CacheTimeout:      100 * time.Millisecond,
		StoreTimeout:      2 * time.Second,
		InvalidateRetries: 2,
	}
	f := &authFixture{
		db:       db,
		users:    repository.NewUserRepository(db),
		sessions: repository.NewSessionRepository(db),
		tracks:   repository.NewTrackRepository(db),
		cache:    cache,
		jwt:      security.NewJWTManager("follower-tracker", "follower-tracker-api", testSecret),
	}
	f.manager = NewSessionManager(f.sessions, cache, opts, log)
	f.verifier = NewTokenVerifier(f.jwt, f.sessions, f.users, cache, f.manager, opts, log)
	f.auth, err = NewAuthService(f.users, f.sessions, f.manager, f.verifier, f.jwt, AuthOptions{
		AccessTTL:    time.Hour,
		RefreshTTL:   2 * time.Hour,
		StoreTimeout: opts.StoreTimeout,
	}, bcrypt.MinCost, log)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	f.session = NewSessionService(f.sessions, f.manager, opts.StoreTimeout)
	f.user = NewUserService(f.users, f.manager, bcrypt.MinCost, opts.StoreTimeout, log)
	return f
}

func (f *authFixture) register(t *testing.T, username string) *domain.User {
	t.Helper()
	u, err := f.user.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func (f *authFixture) login(t *testing.T, username string) *TokenPair {
	t.Helper()
	pair, err := f.auth.Login(context.Background(), username, "correct horse")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return pair
}

func (f *authFixture) countSessions(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&domain.Session{}).Count(&n).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}

var errCacheDown = errors.New("cache down")

// flakyCache wraps a cache and fails the selected operations.
type flakyCache struct {
	inner          SessionCache
	mu             sync.Mutex
	failGet        bool
	failPut        bool
	failInvalidate bool
	invalidations  int
}

func (c *flakyCache) set(get, put, invalidate bool) {
	c.mu.Lock()
	c.failGet, c.failPut, c.failInvalidate = get, put, invalidate
	c.mu.Unlock()
}

func (c *flakyCache) Put(ctx context.Context, token string, identity SessionIdentity, ttl time.Duration) error {
	c.mu.Lock()
	fail := c.failPut
	c.mu.Unlock()
	if fail {
		return errCacheDown
	}
	return c.inner.Put(ctx, token, identity, ttl)
}

func (c *flakyCache) Get(ctx context.Context, token string) (SessionIdentity, bool, error) {
	c.mu.Lock()
	fail := c.failGet
	c.mu.Unlock()
	if fail {
		return SessionIdentity{}, false, errCacheDown
	}
	return c.inner.Get(ctx, token)
}

func (c *flakyCache) Invalidate(ctx context.Context, token string) error {
	c.mu.Lock()
	c.invalidations++
	fail := c.failInvalidate
	c.mu.Unlock()
	if fail {
		return errCacheDown
	}
	return c.inner.Invalidate(ctx, token)
}

// slowCache blocks every call until the context expires.
type slowCache struct{}

func (slowCache) Put(ctx context.Context, _ string, _ SessionIdentity, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowCache) Get(ctx context.Context, _ string) (SessionIdentity, bool, error) {
	<-ctx.Done()
	return SessionIdentity{}, false, ctx.Err()
}

func (slowCache) Invalidate(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDBForTest(t *testing.T) *gorm.DB {
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
	return db
}

func newSessionRepoForTest(t *testing.T) SessionRepository {
	t.Helper()
	return NewSessionRepository(newDBForTest(t))
}

func TestSessionRepositoryCreateGeneratesUniqueTokens(t *testing.T) {
	repo := newSessionRepoForTest(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := repo.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" || a.SessionToken == "" || a.IsRevoked {
		t.Fatalf("unexpected session: %+v", a)
	}
	if a.SessionToken == b.SessionToken || a.ID == b.ID {
		t.Fatal("expected distinct sessions")
	}

	found, err := repo.FindByToken(ctx, a.SessionToken)
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if found.ID != a.ID || found.UserID != "u1" {
		t.Fatalf("unexpected lookup result: %+v", found)
	}
	if _, err := repo.FindByToken(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepositoryRevokeIsOwnerScoped(t *testing.T) {
	repo := newSessionRepoForTest(t)
	ctx := context.Background()

	s, err := repo.Create(ctx, "owner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.Revoke(ctx, s.ID, "intruder", "user_logout"); !errors.Is(err, ErrSessionNotOwned) {
		t.Fatalf("expected ErrSessionNotOwned, got %v", err)
	}
	still, err := repo.FindByID(ctx, s.ID)
	if err != nil || still.IsRevoked {
		t.Fatalf("session must stay active after foreign revoke: %+v err=%v", still, err)
	}

	changed, err := repo.Revoke(ctx, s.ID, "owner", "user_logout")
	if err != nil || !changed {
		t.Fatalf("expected owner revoke to change state, changed=%v err=%v", changed, err)
	}
	changed, err = repo.Revoke(ctx, s.ID, "owner", "user_logout")
	if err != nil || changed {
		t.Fatalf("expected second revoke to be a no-op, changed=%v err=%v", changed, err)
	}

	revoked, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !revoked.IsRevoked || revoked.RevokedAt == nil || revoked.RevokedReason == nil || *revoked.RevokedReason != "user_logout" {
		t.Fatalf("unexpected revoked session: %+v", revoked)
	}

	if _, err := repo.Revoke(ctx, "missing", "owner", "user_logout"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepositoryConcurrentRevokeReportsOneChange(t *testing.T) {
	repo := newSessionRepoForTest(t)
	ctx := context.Background()
	s, err := repo.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := repo.RevokeByID(ctx, s.ID, "admin")
			if err != nil {
				t.Errorf("revoke: %v", err)
				return
			}
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if changes != 1 {
		t.Fatalf("expected exactly one state change, got %d", changes)
	}
}

func TestSessionRepositoryRevokeAllByUserKeepsCurrent(t *testing.T) {
	repo := newSessionRepoForTest(t)
	ctx := context.Background()

	keep, _ := repo.Create(ctx, "u1")
	other1, _ := repo.Create(ctx, "u1")
	other2, _ := repo.Create(ctx, "u1")
	foreign, _ := repo.Create(ctx, "u2")
	if _, err := repo.RevokeByID(ctx, other2.ID, "earlier"); err != nil {
		t.Fatalf("pre-revoke: %v", err)
	}

	revoked, err := repo.RevokeAllByUser(ctx, "u1", keep.ID, "revoke_others")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if len(revoked) != 1 || revoked[0].ID != other1.ID || revoked[0].SessionToken != other1.SessionToken {
		t.Fatalf("expected only the other active session, got %+v", revoked)
	}

	active, err := repo.ListActiveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != keep.ID {
		t.Fatalf("unexpected active sessions: %+v", active)
	}
	all, err := repo.ListByUser(ctx, "u1")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected three sessions in total, got %d err=%v", len(all), err)
	}
	if s, _ := repo.FindByID(ctx, foreign.ID); s.IsRevoked {
		t.Fatal("sessions of other users must not be touched")
	}
}

func TestSessionRepositoryListRevokedSince(t *testing.T) {
	db := newDBForTest(t)
	repo := &GormSessionRepository{db: db, now: time.Now}
	ctx := context.Background()

	old, _ := repo.Create(ctx, "u1")
	recent, _ := repo.Create(ctx, "u1")
	_, _ = repo.Create(ctx, "u1")

	repo.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	if _, err := repo.RevokeByID(ctx, old.ID, "old"); err != nil {
		t.Fatalf("revoke old: %v", err)
	}
	repo.now = time.Now
	if _, err := repo.RevokeByID(ctx, recent.ID, "recent"); err != nil {
		t.Fatalf("revoke recent: %v", err)
	}

	got, err := repo.ListRevokedSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list revoked since: %v", err)
	}
	if len(got) != 1 || got[0].ID != recent.ID {
		t.Fatalf("expected only the recent revocation, got %+v", got)
	}
}

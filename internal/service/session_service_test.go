package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionServiceRevokeIsOwnerScoped(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()
	alice := f.register(t, "alice")
	mallory := f.register(t, "mallory")
	pair := f.login(t, "alice")
	claims, _ := f.jwt.ParseAccessToken(pair.AccessToken)
	session, err := f.sessions.FindByToken(ctx, claims.Session)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if _, err := f.session.RevokeSession(ctx, mallory.ID, session.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.auth.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("session must stay valid after foreign revoke: %v", err)
	}

	status, err := f.session.RevokeSession(ctx, alice.ID, session.ID)
	if err != nil || status != "revoked" {
		t.Fatalf("owner revoke: status=%q err=%v", status, err)
	}
	status, err = f.session.RevokeSession(ctx, alice.ID, session.ID)
	if err != nil || status != "already_revoked" {
		t.Fatalf("second revoke: status=%q err=%v", status, err)
	}
	if _, err := f.session.RevokeSession(ctx, alice.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.auth.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked session to fail, got %v", err)
	}
}

func TestSessionServiceListAndRevokeOthers(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()
	u := f.register(t, "kate")
	current := f.login(t, "kate")
	other1 := f.login(t, "kate")
	other2 := f.login(t, "kate")
	currentClaims, _ := f.jwt.ParseAccessToken(current.AccessToken)

	views, err := f.session.ListSessions(ctx, u.ID, currentClaims.Session, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected three sessions, got %d", len(views))
	}
	currentCount := 0
	for _, v := range views {
		if v.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current session, got %d", currentCount)
	}

	n, err := f.session.RevokeOtherSessions(ctx, u.ID, currentClaims.Session)
	if err != nil || n != 2 {
		t.Fatalf("revoke others: n=%d err=%v", n, err)
	}
	for _, p := range []*TokenPair{other1, other2} {
		if _, err := f.auth.Validate(ctx, p.AccessToken); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected other session revoked, got %v", err)
		}
	}
	if _, err := f.auth.Validate(ctx, current.AccessToken); err != nil {
		t.Fatalf("current session must stay valid: %v", err)
	}

	all, err := f.session.ListSessions(ctx, u.ID, currentClaims.Session, true)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected revoked sessions in full listing, got %d err=%v", len(all), err)
	}
}

func TestSessionManagerSweepRepairsFailedInvalidation(t *testing.T) {
	cache := &flakyCache{inner: NewInMemorySessionCache()}
	f := newAuthFixture(t, cache)
	ctx := context.Background()
	f.register(t, "leo")
	pair := f.login(t, "leo")
	claims, _ := f.jwt.ParseAccessToken(pair.AccessToken)
	session, _ := f.sessions.FindByToken(ctx, claims.Session)

	cache.set(false, false, true)
	status, err := f.session.AdminRevokeSession(ctx, session.ID)
	if err != nil || status != "revoked" {
		t.Fatalf("admin revoke: status=%q err=%v", status, err)
	}
	if cache.invalidations < 2 {
		t.Fatalf("expected invalidation to be retried, got %d attempts", cache.invalidations)
	}
	// The stale entry still answers from cache until the sweep runs.
	if v, err := f.auth.Validate(ctx, pair.AccessToken); err != nil || v.Source != "cache" {
		t.Fatalf("expected stale cache hit, got %+v err=%v", v, err)
	}

	cache.set(false, false, false)
	n, err := f.session.SweepRevoked(ctx, time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if _, err := f.auth.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked token invalid after sweep, got %v", err)
	}
}

func TestSessionManagerRevokeAllForUser(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()
	u := f.register(t, "mia")
	a := f.login(t, "mia")
	b := f.login(t, "mia")

	n, err := f.session.RevokeAllForUser(ctx, u.ID, "password_reset")
	if err != nil || n != 2 {
		t.Fatalf("revoke all: n=%d err=%v", n, err)
	}
	for _, p := range []*TokenPair{a, b} {
		if _, err := f.auth.Validate(ctx, p.AccessToken); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected session revoked, got %v", err)
		}
	}
}

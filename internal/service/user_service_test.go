package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/socialbot/follower-tracker/internal/repository"
)

func TestUserServiceRegisterValidation(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{name: "short username", in: RegisterInput{Username: "ab", Email: "ab@example.com", Password: "long enough"}},
		{name: "bad email", in: RegisterInput{Username: "abc", Email: "not-an-email", Password: "long enough"}},
		{name: "short password", in: RegisterInput{Username: "abc", Email: "abc@example.com", Password: "short"}},
		{name: "password over bcrypt limit", in: RegisterInput{Username: "abc", Email: "abc@example.com", Password: strings.Repeat("x", 73)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.user.Register(ctx, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	u := f.register(t, "nina")
	if u.PasswordHash == "correct horse" || !u.IsActive {
		t.Fatalf("unexpected registered user: %+v", u)
	}
	if _, err := f.user.Register(ctx, RegisterInput{Username: "nina", Email: "other@example.com", Password: "long enough"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserServiceUpdateProfileRefreshesCachedIdentity(t *testing.T) {
	cache := NewInMemorySessionCache()
	f := newAuthFixture(t, cache)
	ctx := context.Background()
	u := f.register(t, "oscar")
	pair := f.login(t, "oscar")
	claims, _ := f.jwt.ParseAccessToken(pair.AccessToken)

	newEmail := "oscar.new@example.com"
	if _, err := f.user.UpdateProfile(ctx, u.ID, UpdateProfileInput{Email: &newEmail}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	identity, hit, err := cache.Get(ctx, claims.Session)
	if err != nil || !hit {
		t.Fatalf("expected cached session, hit=%v err=%v", hit, err)
	}
	if identity.Email != newEmail {
		t.Fatalf("expected refreshed email, got %q", identity.Email)
	}

	refreshed, err := f.auth.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	newClaims, _ := f.jwt.ParseAccessToken(refreshed.AccessToken)
	if newClaims.Email != newEmail {
		t.Fatalf("expected refreshed token to carry new email, got %q", newClaims.Email)
	}
}

func TestUserServiceDeleteInvalidatesSessions(t *testing.T) {
	cache := NewInMemorySessionCache()
	f := newAuthFixture(t, cache)
	ctx := context.Background()
	u := f.register(t, "pat")
	pair := f.login(t, "pat")

	if err := f.user.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.auth.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token of deleted user to fail, got %v", err)
	}
	if _, err := f.user.GetByID(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.user.Delete(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUserServiceAcceptsPasswordAtBcryptLimit(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	u, err := f.user.Register(context.Background(), RegisterInput{Username: "olga", Email: "olga@example.com", Password: strings.Repeat("x", 72)})
	if err != nil {
		t.Fatalf("register with 72 byte password: %v", err)
	}
	if u.PasswordHash == "" {
		t.Fatalf("expected password hash")
	}
}

func TestUserServiceSearch(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()
	f.register(t, "paula")
	f.register(t, "peter")
	f.register(t, "quinn")

	page, err := f.user.Search(ctx, repository.SearchRequest{
		Filter: repository.SearchFilter{Rules: []repository.SearchRule{
			{Field: "username", Operator: "begins_with", Value: "p"},
		}},
		ItemSort: "username",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 || page.Items[0].Username != "paula" || page.Items[1].Username != "peter" {
		t.Fatalf("unexpected search page: %+v", page)
	}

	_, err = f.user.Search(ctx, repository.SearchRequest{
		Filter: repository.SearchFilter{Rules: []repository.SearchRule{
			{Field: "password_hash", Operator: "is_not_null"},
		}},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUserServiceEnsureUserIsIdempotent(t *testing.T) {
	f := newAuthFixture(t, NewInMemorySessionCache())
	ctx := context.Background()
	in := RegisterInput{Username: "test_user", Email: "test@example.com", Password: "test_password"}

	first, created, err := f.user.EnsureUser(ctx, in)
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	second, created, err := f.user.EnsureUser(ctx, in)
	if err != nil || created {
		t.Fatalf("second ensure: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing user %s, got %s", first.ID, second.ID)
	}
	if _, _, err := f.user.EnsureUser(ctx, RegisterInput{Username: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

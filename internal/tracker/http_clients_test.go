package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
)

func TestHTTPFetcherUsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/instagram/users/test_user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"followers_count": 1234}`))
	})
	mux.HandleFunc("/instagram/users/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := NewHTTPFetcher(context.Background(), HTTPFetcherConfig{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth/token",
		Timeout:      2 * time.Second,
	})
	got, err := fetcher.FollowerCount(context.Background(), domain.PlatformInstagram, "test_user")
	if err != nil || got != 1234 {
		t.Fatalf("FollowerCount=%d err=%v", got, err)
	}
	if _, err := fetcher.FollowerCount(context.Background(), domain.PlatformInstagram, "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("expected cached app token, token endpoint called %d times", tokenCalls.Load())
	}
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"followers_count": 7}`))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(context.Background(), HTTPFetcherConfig{BaseURL: srv.URL, MaxTries: 3})
	got, err := fetcher.FollowerCount(context.Background(), domain.PlatformTwitter, "x")
	if err != nil || got != 7 {
		t.Fatalf("FollowerCount=%d err=%v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestTelegramNotifierSendsMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotChat = r.Form.Get("chat_id")
		gotText = r.Form.Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "bot-token", time.Second)
	alert := Alert{ChatID: "42", Platform: domain.PlatformTwitter, ProfileUsername: "test_user2", FollowerCount: 7000, Threshold: 1000}
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotPath != "/botbot-token/sendMessage" || gotChat != "42" || !strings.Contains(gotText, "test_user2") {
		t.Fatalf("unexpected request path=%q chat=%q text=%q", gotPath, gotChat, gotText)
	}

	if err := n.Notify(context.Background(), Alert{ProfileUsername: "x"}); err == nil {
		t.Fatal("expected error without chat id")
	}
}

func TestTelegramNotifierReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramNotifier(srv.URL, "t", time.Second).Notify(context.Background(), Alert{ChatID: "1"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	h := NewRateLimiter(2, time.Minute).Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rr := hit(h, "10.0.0.1:1000"); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rr.Code)
		}
	}
	rr := hit(h, "10.0.0.1:1001")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", rr.Header().Get("X-RateLimit-Remaining"))
	}

	if rr := hit(h, "10.0.0.2:1000"); rr.Code != http.StatusNoContent {
		t.Fatalf("other clients must not share the bucket, got %d", rr.Code)
	}
}

func TestLocalLimiterWindowSlides(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := &localSlidingWindowLimiter{hits: map[string][]time.Time{}, cleanup: now.Add(time.Hour), now: func() time.Time { return now }}
	policy := RateLimitPolicy{Limit: 1, Window: time.Minute}

	if d, _ := l.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatal("first hit should be allowed")
	}
	d, _ := l.Allow(context.Background(), "k", policy)
	if d.Allowed || d.RetryAfter != time.Minute {
		t.Fatalf("expected denial with 1m retry, got %+v", d)
	}
	now = now.Add(61 * time.Second)
	if d, _ := l.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatal("hit after window should be allowed")
	}
}

func TestRedisLimiterSharesCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "test_rl")
	a := NewDistributedRateLimiter(limiter, 2, time.Minute, FailClosed, "auth").Middleware()(okHandler())
	b := NewDistributedRateLimiter(limiter, 2, time.Minute, FailClosed, "auth").Middleware()(okHandler())

	if rr := hit(a, "10.0.0.1:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := hit(b, "10.0.0.1:2"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := hit(a, "10.0.0.1:3"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from shared counter, got %d", rr.Code)
	}
	if ttl := mr.TTL("test_rl:auth:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl on counter key, got %v", ttl)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func TestRateLimiterFailureModes(t *testing.T) {
	open := NewDistributedRateLimiter(failingLimiter{}, 1, time.Minute, FailOpen, "auth").Middleware()(okHandler())
	if rr := hit(open, "10.0.0.1:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("fail open should pass through, got %d", rr.Code)
	}
	closed := NewDistributedRateLimiter(failingLimiter{}, 1, time.Minute, FailClosed, "auth").Middleware()(okHandler())
	if rr := hit(closed, "10.0.0.1:1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed should reject, got %d", rr.Code)
	}
}

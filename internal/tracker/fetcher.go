package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrProfileNotFound = errors.New("profile not found")

// Fetcher returns the current follower count of a profile on a platform.
type Fetcher interface {
	FollowerCount(ctx context.Context, platform domain.Platform, profile string) (int, error)
}

var mockFollowerCounts = map[domain.Platform]map[string]int{
	domain.PlatformInstagram: {"test_user": 1600, "test_user1": 1020, "test_user2": 5000},
	domain.PlatformTwitter:   {"test_user": 800, "test_user1": 1500, "test_user2": 7000},
}

// MockFetcher serves fixed counts; unknown profiles have zero followers.
type MockFetcher struct {
	counts map[domain.Platform]map[string]int
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{counts: mockFollowerCounts}
}

func (f *MockFetcher) FollowerCount(_ context.Context, platform domain.Platform, profile string) (int, error) {
	return f.counts[platform][profile], nil
}

type HTTPFetcherConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	MaxTries     uint
}

// HTTPFetcher reads counts from a social API gateway at
// {BaseURL}/{platform}/users/{profile}, answering {"followers_count": n}. With client
// credentials configured every request carries an app-only OAuth2 bearer token.
type HTTPFetcher struct {
	client   *http.Client
	baseURL  string
	maxTries uint
}

func NewHTTPFetcher(ctx context.Context, cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(ctx)
		client.Timeout = cfg.Timeout
	}
	return &HTTPFetcher{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxTries: cfg.MaxTries,
	}
}

type followerCountResponse struct {
	FollowersCount *int `json:"followers_count"`
}

func (f *HTTPFetcher) FollowerCount(ctx context.Context, platform domain.Platform, profile string) (int, error) {
	endpoint := fmt.Sprintf("%s/%s/users/%s", f.baseURL, url.PathEscape(string(platform)), url.PathEscape(profile))
	return backoff.Retry(ctx, func() (int, error) {
		return f.fetch(ctx, endpoint)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(f.maxTries))
}

func (f *HTTPFetcher) fetch(ctx context.Context, endpoint string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, backoff.Permanent(ErrProfileNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("social api status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, backoff.Permanent(fmt.Errorf("social api status %d", resp.StatusCode))
	}

	var body followerCountResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("decode social api response: %w", err))
	}
	if body.FollowersCount == nil || *body.FollowersCount < 0 {
		return 0, backoff.Permanent(errors.New("social api response has no followers_count"))
	}
	return *body.FollowersCount, nil
}

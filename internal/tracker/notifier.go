package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
)

type Alert struct {
	ChatID          string
	Platform        domain.Platform
	ProfileUsername string
	FollowerCount   int
	Threshold       int
}

func (a Alert) Message() string {
	return fmt.Sprintf("%s on %s reached %d followers (threshold %d)", a.ProfileUsername, a.Platform, a.FollowerCount, a.Threshold)
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// TelegramNotifier delivers alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewTelegramNotifier(baseURL, token string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	if alert.ChatID == "" {
		return fmt.Errorf("telegram notify: no chat id for %s", alert.ProfileUsername)
	}
	form := url.Values{}
	form.Set("chat_id", alert.ChatID)
	form.Set("text", alert.Message())

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := n.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token; report without it.
		return errors.New("telegram notify: request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram notify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// LoggingNotifier records alerts in the log when no bot token is configured.
type LoggingNotifier struct {
	logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.InfoContext(ctx, "follower alert",
		"chat_id", alert.ChatID,
		"platform", string(alert.Platform),
		"profile", alert.ProfileUsername,
		"followers", alert.FollowerCount,
		"threshold", alert.Threshold,
	)
	return nil
}

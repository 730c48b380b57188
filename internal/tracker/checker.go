package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Alerted int `json:"alerted"`
	Failed  int `json:"failed"`
}

// Checker polls follower counts for every alert-enabled track, appends history on change and
// alerts the owner once a new count reaches the track's threshold.
type Checker struct {
	tracks        repository.TrackRepository
	users         repository.UserRepository
	fetcher       Fetcher
	notifier      Notifier
	defaultChatID string
	concurrency   int
	logger        *slog.Logger
}

func NewChecker(tracks repository.TrackRepository, users repository.UserRepository, fetcher Fetcher, notifier Notifier, defaultChatID string, concurrency int, logger *slog.Logger) *Checker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Checker{
		tracks:        tracks,
		users:         users,
		fetcher:       fetcher,
		notifier:      notifier,
		defaultChatID: defaultChatID,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// CheckAll runs one polling pass. Per-track failures are logged and counted, never fatal.
func (c *Checker) CheckAll(ctx context.Context) (CheckResult, error) {
	ctx, span := observability.Tracer("tracker").Start(ctx, "tracker.check_all")
	defer span.End()

	tracks, err := c.tracks.ListAlertEnabled(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	var changed, alerted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, track := range tracks {
		g.Go(func() error {
			outcome, err := c.checkOne(gctx, track)
			if err != nil {
				failed.Add(1)
				observability.RecordFollowerPoll(gctx, string(track.Platform), "error")
				c.logger.WarnContext(gctx, "follower check failed", "track_id", track.ID, "error", err)
				return nil
			}
			observability.RecordFollowerPoll(gctx, string(track.Platform), outcome.poll)
			if outcome.changed {
				changed.Add(1)
			}
			if outcome.alerted {
				alerted.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Checked: len(tracks),
		Changed: int(changed.Load()),
		Alerted: int(alerted.Load()),
		Failed:  int(failed.Load()),
	}
	span.SetAttributes(
		attribute.Int("tracks.checked", result.Checked),
		attribute.Int("tracks.changed", result.Changed),
		attribute.Int("tracks.alerted", result.Alerted),
	)
	c.logger.InfoContext(ctx, "follower check finished",
		"checked", result.Checked, "changed", result.Changed, "alerted", result.Alerted, "failed", result.Failed)
	return result, ctx.Err()
}

type checkOutcome struct {
	poll    string
	changed bool
	alerted bool
}

func (c *Checker) checkOne(ctx context.Context, track domain.Track) (checkOutcome, error) {
	count, err := c.fetcher.FollowerCount(ctx, track.Platform, track.ProfileUsername)
	if err != nil {
		return checkOutcome{}, err
	}
	updated, changed, err := c.tracks.RecordFollowerCount(ctx, track.ID, count)
	if err != nil {
		return checkOutcome{}, err
	}
	if !changed {
		return checkOutcome{poll: "unchanged"}, nil
	}
	out := checkOutcome{poll: "changed", changed: true}
	if count < updated.AlertThreshold {
		return out, nil
	}

	alert := Alert{
		ChatID:          c.chatIDFor(ctx, updated.UserID),
		Platform:        updated.Platform,
		ProfileUsername: updated.ProfileUsername,
		FollowerCount:   count,
		Threshold:       updated.AlertThreshold,
	}
	if err := c.notifier.Notify(ctx, alert); err != nil {
		observability.RecordFollowerAlert(ctx, string(updated.Platform), "error")
		c.logger.WarnContext(ctx, "follower alert not delivered", "track_id", updated.ID, "error", err)
		return out, nil
	}
	observability.RecordFollowerAlert(ctx, string(updated.Platform), "sent")
	out.alerted = true
	return out, nil
}

func (c *Checker) chatIDFor(ctx context.Context, userID string) string {
	user, err := c.users.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			c.logger.WarnContext(ctx, "alert owner lookup failed", "user_id", userID, "error", err)
		}
		return c.defaultChatID
	}
	if user.ChatID != nil && *user.ChatID != "" {
		return *user.ChatID
	}
	return c.defaultChatID
}

package tracker

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/socialbot/follower-tracker/internal/repository"
)

var ErrInvalidQuery = errors.New("invalid stats query")

const (
	DefaultTopChangesHours = 24
	DefaultTopChangesLimit = 5
	maxTopChangesHours     = 24 * 30
	maxTopChangesLimit     = 100
	engagementWindow       = 24 * time.Hour
)

type FollowerChange struct {
	TrackID         string `json:"track_id"`
	Platform        string `json:"platform"`
	ProfileUsername string `json:"profile_username"`
	Start           int    `json:"start"`
	End             int    `json:"end"`
	Change          int    `json:"change"`
}

type Stats struct {
	tracks repository.TrackRepository
	now    func() time.Time
}

func NewStats(tracks repository.TrackRepository) *Stats {
	return &Stats{tracks: tracks, now: time.Now}
}

// TopChanges returns the user's tracks with the largest absolute follower change over the last
// hours, measured between the oldest and newest history rows in the window.
func (s *Stats) TopChanges(ctx context.Context, userID string, hours, limit int) ([]FollowerChange, error) {
	if hours < 1 || hours > maxTopChangesHours || limit < 1 || limit > maxTopChangesLimit {
		return nil, ErrInvalidQuery
	}
	tracks, err := s.tracks.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID)
	}
	history, err := s.tracks.HistorySince(ctx, ids, s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, err
	}

	byTrack := make(map[string]*FollowerChange)
	for _, h := range history {
		c, ok := byTrack[h.TrackID]
		if !ok {
			c = &FollowerChange{TrackID: h.TrackID, Start: h.FollowerCount}
			byTrack[h.TrackID] = c
		}
		c.End = h.FollowerCount
	}
	changes := make([]FollowerChange, 0, len(byTrack))
	for _, t := range tracks {
		c, ok := byTrack[t.ID]
		if !ok {
			continue
		}
		c.Platform = string(t.Platform)
		c.ProfileUsername = t.ProfileUsername
		c.Change = c.End - c.Start
		changes = append(changes, *c)
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return abs(changes[i].Change) > abs(changes[j].Change)
	})
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

// Engagement is |last - first| / last * 100 over the last 24 hours, rounded to two decimals,
// where first is the oldest count in the window and last the track's current count.
func (s *Stats) Engagement(ctx context.Context, userID, profile string) (float64, error) {
	track, err := s.tracks.FindByProfileForUser(ctx, userID, profile)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			return 0, ErrProfileNotFound
		}
		return 0, err
	}
	history, err := s.tracks.HistorySince(ctx, []string{track.ID}, s.now().Add(-engagementWindow))
	if err != nil {
		return 0, err
	}
	if len(history) == 0 || track.LastFollowerCount <= 0 {
		return 0, nil
	}
	first := history[0].FollowerCount
	last := track.LastFollowerCount
	rate := float64(abs(last-first)) / float64(last) * 100
	return math.Round(rate*100) / 100, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/repository"
)

type CreateTrackInput struct {
	Platform        string `json:"platform"`
	ProfileUsername string `json:"profile_username"`
	AlertThreshold  *int   `json:"alert_threshold,omitempty"`
	AlertEnabled    *bool  `json:"alert_enabled,omitempty"`
}

type AlertSettingsInput struct {
	AlertThreshold *int  `json:"alert_threshold,omitempty"`
	AlertEnabled   *bool `json:"alert_enabled,omitempty"`
}

type TrackService struct {
	tracks       repository.TrackRepository
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewTrackService(tracks repository.TrackRepository, storeTimeout time.Duration, logger *slog.Logger) *TrackService {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &TrackService{tracks: tracks, storeTimeout: storeTimeout, logger: logger}
}

func (s *TrackService) trackError(ctx context.Context, op string, err error) error {
	if errors.Is(err, repository.ErrTrackNotFound) {
		return ErrNotFound
	}
	s.logger.ErrorContext(ctx, "track store failure", "operation", op, "error", err)
	return ErrDependencyUnavailable
}

func validThreshold(v int) error {
	if v < 0 {
		return fmt.Errorf("%w: alert_threshold must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *TrackService) Create(ctx context.Context, userID string, in CreateTrackInput) (*domain.Track, error) {
	platform, ok := domain.ParsePlatform(in.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: platform must be instagram or twitter", ErrInvalidInput)
	}
	profile := strings.TrimSpace(in.ProfileUsername)
	if profile == "" || len(profile) > 120 {
		return nil, fmt.Errorf("%w: profile_username is required", ErrInvalidInput)
	}
	track := &domain.Track{
		UserID:          userID,
		Platform:        platform,
		ProfileUsername: profile,
		AlertThreshold:  domain.DefaultAlertThreshold,
		AlertEnabled:    true,
	}
	if in.AlertThreshold != nil {
		if err := validThreshold(*in.AlertThreshold); err != nil {
			return nil, err
		}
		track.AlertThreshold = *in.AlertThreshold
	}
	if in.AlertEnabled != nil {
		track.AlertEnabled = *in.AlertEnabled
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.tracks.Create(storeCtx, track); err != nil {
		return nil, s.trackError(ctx, "create", err)
	}
	return track, nil
}

func (s *TrackService) Get(ctx context.Context, userID, id string) (*domain.Track, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	track, err := s.tracks.FindByIDForUser(storeCtx, userID, id)
	if err != nil {
		return nil, s.trackError(ctx, "find_by_id_for_user", err)
	}
	return track, nil
}

func (s *TrackService) List(ctx context.Context, userID string, req repository.PageRequest) (repository.PageResult[domain.Track], error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	page, err := s.tracks.ListByUser(storeCtx, userID, req)
	if err != nil {
		return page, s.trackError(ctx, "list_by_user", err)
	}
	return page, nil
}

func (s *TrackService) UpdateAlert(ctx context.Context, userID, id string, in AlertSettingsInput) (*domain.Track, error) {
	track, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.AlertThreshold != nil {
		if err := validThreshold(*in.AlertThreshold); err != nil {
			return nil, err
		}
		track.AlertThreshold = *in.AlertThreshold
	}
	if in.AlertEnabled != nil {
		track.AlertEnabled = *in.AlertEnabled
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.tracks.Update(storeCtx, track); err != nil {
		return nil, s.trackError(ctx, "update", err)
	}
	return track, nil
}

func (s *TrackService) Delete(ctx context.Context, userID, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.tracks.DeleteForUser(storeCtx, userID, id); err != nil {
		return s.trackError(ctx, "delete_for_user", err)
	}
	return nil
}

// FollowerCount returns the caller's track of profile, which carries the last polled count.
func (s *TrackService) FollowerCount(ctx context.Context, userID, profile string) (*domain.Track, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, fmt.Errorf("%w: profile_username is required", ErrInvalidInput)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	track, err := s.tracks.FindByProfileForUser(storeCtx, userID, profile)
	if err != nil {
		return nil, s.trackError(ctx, "find_by_profile_for_user", err)
	}
	return track, nil
}

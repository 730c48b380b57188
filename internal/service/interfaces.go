package service

import (
	"context"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/repository"
)

type AuthServiceInterface interface {
	Login(ctx context.Context, login, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) (string, error)
	Validate(ctx context.Context, accessToken string) (*VerifiedToken, error)
}

type UserServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*domain.User, error)
	Search(ctx context.Context, req repository.SearchRequest) (repository.PageResult[domain.User], error)
}

type SessionServiceInterface interface {
	ListSessions(ctx context.Context, userID, currentSessionToken string, includeRevoked bool) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID, sessionID string) (string, error)
	RevokeOtherSessions(ctx context.Context, userID, currentSessionToken string) (int, error)
}

type TrackServiceInterface interface {
	Create(ctx context.Context, userID string, in CreateTrackInput) (*domain.Track, error)
	Get(ctx context.Context, userID, id string) (*domain.Track, error)
	List(ctx context.Context, userID string, req repository.PageRequest) (repository.PageResult[domain.Track], error)
	UpdateAlert(ctx context.Context, userID, id string, in AlertSettingsInput) (*domain.Track, error)
	Delete(ctx context.Context, userID, id string) error
	FollowerCount(ctx context.Context, userID, profile string) (*domain.Track, error)
}

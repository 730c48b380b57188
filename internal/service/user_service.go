package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/security"
)

const (
	minPasswordLength = 8
	// bcrypt only hashes the first 72 bytes and refuses longer input.
	maxPasswordBytes = 72
)

type RegisterInput struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	ChatID   *string `json:"chat_id,omitempty"`
}

type UpdateProfileInput struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	ChatID   *string `json:"chat_id,omitempty"`
}

type UserService struct {
	users        repository.UserRepository
	manager      *SessionManager
	bcryptCost   int
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewUserService(users repository.UserRepository, manager *SessionManager, bcryptCost int, storeTimeout time.Duration, logger *slog.Logger) *UserService {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &UserService{users: users, manager: manager, bcryptCost: bcryptCost, storeTimeout: storeTimeout, logger: logger}
}

func (s *UserService) userError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, repository.ErrInvalidSearch):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.logger.ErrorContext(ctx, "user store failure", "operation", op, "error", err)
	return ErrDependencyUnavailable
}

func normalizeUsername(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if len(v) < 3 || len(v) > 120 || strings.ContainsAny(v, " @\t\n") {
		return "", fmt.Errorf("%w: username must be 3-120 characters without spaces or @", ErrInvalidInput)
	}
	return v, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

func (s *UserService) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	return security.HashPassword(password, s.bcryptCost)
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		ChatID:       in.ChatID,
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.Create(storeCtx, user); err != nil {
		return nil, s.userError(ctx, "create", err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// EnsureUser registers in unless its username is already taken. The bool reports whether a
// user was created.
func (s *UserService) EnsureUser(ctx context.Context, in RegisterInput) (*domain.User, bool, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, false, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	existing, err := s.users.FindByUsername(storeCtx, username)
	cancel()
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, s.userError(ctx, "find_by_username", err)
	}
	user, err := s.Register(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	user, err := s.users.FindByID(storeCtx, id)
	if err != nil {
		return nil, s.userError(ctx, "find_by_id", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	page, err := s.users.ListPaged(storeCtx, req)
	if err != nil {
		return page, s.userError(ctx, "list_paged", err)
	}
	return page, nil
}

// Search runs a filtered user search. Malformed rules surface as ErrInvalidInput.
func (s *UserService) Search(ctx context.Context, req repository.SearchRequest) (repository.PageResult[domain.User], error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	page, err := s.users.Search(storeCtx, req)
	if err != nil {
		return page, s.userError(ctx, "search", err)
	}
	return page, nil
}

// UpdateProfile applies the non-nil fields of in and rewrites the cached identity of the user's
// active sessions so cached lookups reflect the change.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*domain.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		if user.Username, err = normalizeUsername(*in.Username); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		if user.Email, err = normalizeEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if user.PasswordHash, err = s.hash(*in.Password); err != nil {
			return nil, err
		}
	}
	if in.ChatID != nil {
		chatID := strings.TrimSpace(*in.ChatID)
		user.ChatID = &chatID
		if chatID == "" {
			user.ChatID = nil
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err = s.users.Update(storeCtx, user)
	cancel()
	if err != nil {
		return nil, s.userError(ctx, "update", err)
	}
	if in.Username != nil || in.Email != nil {
		if err := s.manager.RefreshUserCache(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "session cache refresh failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// SetActive toggles the account. Deactivation revokes every session of the user.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.users.SetActive(storeCtx, id, active)
	cancel()
	if err != nil {
		return s.userError(ctx, "set_active", err)
	}
	if !active {
		if _, err := s.manager.RevokeAllForUser(ctx, id, "", "account_deactivated"); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the user with its sessions, tracks and history, then drops cached sessions.
func (s *UserService) Delete(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	removed, err := s.users.Delete(storeCtx, id)
	cancel()
	if err != nil {
		return s.userError(ctx, "delete", err)
	}
	s.manager.InvalidateSessions(ctx, removed)
	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "sessions", len(removed))
	return nil
}

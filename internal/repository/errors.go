package repository

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotOwned = errors.New("session not owned by user")
	ErrUserNotFound    = errors.New("user not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrDuplicate       = errors.New("record already exists")
)

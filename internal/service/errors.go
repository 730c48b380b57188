package service

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInactiveAccount       = errors.New("account is inactive")
	ErrTokenInvalid          = errors.New("invalid or expired token")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrConflict              = errors.New("already exists")
	ErrInvalidInput          = errors.New("invalid input")
)

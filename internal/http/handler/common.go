package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/socialbot/follower-tracker/internal/http/middleware"
	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/service"
	"github.com/socialbot/follower-tracker/internal/tracker"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode request body: trailing data")
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

// writeServiceError maps service sentinels to HTTP statuses. Anything unrecognised is a 500
// without the underlying message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
	case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrUnauthorized):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	case errors.Is(err, service.ErrInactiveAccount):
		response.Error(w, r, http.StatusForbidden, "INACTIVE_ACCOUNT", "account is inactive", nil)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, tracker.ErrProfileNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, service.ErrConflict):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "resource already exists", nil)
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, tracker.ErrInvalidQuery):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, service.ErrDependencyUnavailable):
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "a backing service is unavailable, retry later", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func verifiedOrUnauthorized(w http.ResponseWriter, r *http.Request) (*service.VerifiedToken, bool) {
	v, ok := middleware.VerifiedFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return nil, false
	}
	return v, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func pageRequest(r *http.Request) (repository.PageRequest, error) {
	page, err := queryInt(r, "page", repository.DefaultPage)
	if err != nil {
		return repository.PageRequest{}, err
	}
	size, err := queryInt(r, "page_size", repository.DefaultPageSize)
	if err != nil {
		return repository.PageRequest{}, err
	}
	return repository.PageRequest{Page: page, PageSize: size}, nil
}

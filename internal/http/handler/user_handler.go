package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/service"
)

type UserHandler struct {
	users    service.UserServiceInterface
	sessions service.SessionServiceInterface
}

func NewUserHandler(users service.UserServiceInterface, sessions service.SessionServiceInterface) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, "invalid registration payload")
		return
	}
	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "user.registered", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := verifiedOrUnauthorized(w, r); !ok {
		return
	}
	var req repository.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid search payload")
		return
	}
	page, err := h.users.Search(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), v.Identity.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in service.UpdateProfileInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, "invalid profile payload")
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), v.Identity.UserID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	includeRevoked := r.URL.Query().Get("include_revoked") == "true"
	sessions, err := h.sessions.ListSessions(r.Context(), v.Identity.UserID, v.SessionToken(), includeRevoked)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessions)
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	status, err := h.sessions.RevokeSession(r.Context(), v.Identity.UserID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoked", "session_id", sessionID, "status", status)
	response.JSON(w, r, http.StatusOK, map[string]string{"session_id": sessionID, "status": status})
}

func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	count, err := h.sessions.RevokeOtherSessions(r.Context(), v.Identity.UserID, v.SessionToken())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoked_others", "count", count)
	response.JSON(w, r, http.StatusOK, map[string]int{"revoked_count": count})
}

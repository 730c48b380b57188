package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/service"
)

type TrackHandler struct {
	tracks service.TrackServiceInterface
}

func NewTrackHandler(tracks service.TrackServiceInterface) *TrackHandler {
	return &TrackHandler{tracks: tracks}
}

func (h *TrackHandler) List(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	req, err := pageRequest(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	page, err := h.tracks.List(r.Context(), v.Identity.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *TrackHandler) Create(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in service.CreateTrackInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, "invalid track payload")
		return
	}
	track, err := h.tracks.Create(r.Context(), v.Identity.UserID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, track)
}

func (h *TrackHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	track, err := h.tracks.Get(r.Context(), v.Identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, track)
}

func (h *TrackHandler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	var in service.AlertSettingsInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, r, "invalid alert settings payload")
		return
	}
	track, err := h.tracks.UpdateAlert(r.Context(), v.Identity.UserID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, track)
}

func (h *TrackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.tracks.Delete(r.Context(), v.Identity.UserID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (h *TrackHandler) FollowerCount(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	track, err := h.tracks.FollowerCount(r.Context(), v.Identity.UserID, chi.URLParam(r, "profile"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"profile_username": track.ProfileUsername,
		"platform":         track.Platform,
		"follower_count":   track.LastFollowerCount,
		"updated_at":       track.UpdatedAt,
	})
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/tracker"
)

type StatsReader interface {
	TopChanges(ctx context.Context, userID string, hours, limit int) ([]tracker.FollowerChange, error)
	Engagement(ctx context.Context, userID, profile string) (float64, error)
}

type StatsHandler struct {
	stats StatsReader
}

func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) TopChanges(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	hours, err := queryInt(r, "hours", tracker.DefaultTopChangesHours)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", tracker.DefaultTopChangesLimit)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	changes, err := h.stats.TopChanges(r.Context(), v.Identity.UserID, hours, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"hours": hours, "changes": changes})
}

func (h *StatsHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	profile := chi.URLParam(r, "profile")
	rate, err := h.stats.Engagement(r.Context(), v.Identity.UserID, profile)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"profile_username": profile, "engagement_rate": rate})
}

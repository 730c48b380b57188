package handler

import (
	"net/http"
	"strings"

	"github.com/socialbot/follower-tracker/internal/http/middleware"
	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/service"
)

type AuthHandler struct {
	auth service.AuthServiceInterface
}

func NewAuthHandler(auth service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid login payload")
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		badRequest(w, r, "login and password are required")
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		observability.Audit(r, "auth.login.failed")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login.succeeded")
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		badRequest(w, r, "refresh_token is required")
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := middleware.BearerToken(r)
	if raw == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	status, err := h.auth.Logout(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "status", status)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": status})
}

// Validate runs behind the auth middleware, so reaching it means the token is valid.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	v, ok := verifiedOrUnauthorized(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user_id":    v.Identity.UserID,
		"username":   v.Identity.Username,
		"email":      v.Identity.Email,
		"expires_at": v.Claims.ExpiresAt.Time,
		"source":     v.Source,
	})
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/socialbot/follower-tracker/internal/http/response"
	"github.com/socialbot/follower-tracker/internal/service"
)

type contextKey string

const (
	VerifiedTokenContextKey contextKey = "verified_token"
)

type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*service.VerifiedToken, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			verified, err := validator.Validate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrDependencyUnavailable) {
					response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "session store unavailable", nil)
					return
				}
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), VerifiedTokenContextKey, verified)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func VerifiedFromContext(ctx context.Context) (*service.VerifiedToken, bool) {
	v, ok := ctx.Value(VerifiedTokenContextKey).(*service.VerifiedToken)
	return v, ok && v != nil
}

package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/socialbot/follower-tracker/internal/health"
	"github.com/socialbot/follower-tracker/internal/http/handler"
	"github.com/socialbot/follower-tracker/internal/http/middleware"
	"github.com/socialbot/follower-tracker/internal/http/response"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	TrackHandler     *handler.TrackHandler
	StatsHandler     *handler.StatsHandler
	Validator        middleware.TokenValidator
	AuthRateLimitRPM int
	AuthRateLimiter  AuthRateLimiterFunc
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
	Logger           *slog.Logger
}

type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	logger := dep.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(logger))
	r.Use(middleware.BodyLimit(1 << 20))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Validator)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(requireAuth).Get("/validate", dep.AuthHandler.Validate)
		})

		r.With(authLimiter).Post("/users", dep.UserHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", dep.UserHandler.Me)
			r.Patch("/me", dep.UserHandler.UpdateMe)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
			r.Delete("/me/sessions/{session_id}", dep.UserHandler.RevokeSession)
			r.Post("/me/sessions/revoke-others", dep.UserHandler.RevokeOtherSessions)
			r.Post("/users/search", dep.UserHandler.Search)

			r.Route("/tracks", func(r chi.Router) {
				r.Get("/", dep.TrackHandler.List)
				r.Post("/", dep.TrackHandler.Create)
				r.Get("/followers/{profile}", dep.TrackHandler.FollowerCount)
				r.Get("/{id}", dep.TrackHandler.Get)
				r.Patch("/{id}/alert", dep.TrackHandler.UpdateAlert)
				r.Delete("/{id}", dep.TrackHandler.Delete)
			})

			r.Get("/stats/top-changes", dep.StatsHandler.TopChanges)
			r.Get("/stats/engagement/{profile}", dep.StatsHandler.Engagement)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

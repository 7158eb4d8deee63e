package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Daytron/revworks-sub001/internal/handlers"
	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/websocket"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Views         *handlers.ViewHandler
	Submissions   *handlers.SubmissionHandler
	Announcements *handlers.AnnouncementHandler
	Health        *handlers.HealthHandler
	Hub           *websocket.Hub
}

func New(jwtAuth *middleware.JWTAuth, authLimiter *middleware.RateLimiter, h Handlers, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))
	r.Use(middleware.Metrics)

	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", h.Auth.Login)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", h.Auth.Logout)
			})
		})

		// ──── View Routes ────
		r.Route("/views/{view}", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/enter", h.Views.Enter)
			r.Post("/exit", h.Views.Exit)
		})

		// ──── Submission Routes ────
		r.Route("/submissions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", h.Submissions.List)
			r.Post("/{id}/extract", h.Submissions.Extract)
		})

		// ──── Announcement Routes ────
		r.Route("/announcements", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", h.Announcements.List)
			r.Post("/", h.Announcements.Submit)
		})

		// ──── WebSocket ────
		// Authenticates from the token query parameter; browsers cannot set headers on upgrade.
		r.Get("/ws", h.Hub.HandleWebSocket)
	})

	return r
}

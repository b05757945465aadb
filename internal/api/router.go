package api

import (
	"net/http"

	"github.com/dom/slash-backend/internal/api/handlers"
	"github.com/dom/slash-backend/internal/api/middleware"
	"github.com/dom/slash-backend/internal/config"
	"github.com/dom/slash-backend/internal/metrics"
	"github.com/dom/slash-backend/internal/service"
	"github.com/dom/slash-backend/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

func NewRouter(services *service.Services, hub *websocket.Hub, cfg *config.Config, db handlers.Pinger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS)
	r.Use(chiMiddleware.RequestSize(maxBodyBytes))

	healthHandler := handlers.NewHealthHandler(db)
	r.Get("/health", healthHandler.Live)
	r.Get("/health/status", healthHandler.Status)
	r.Handle("/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(services.Session, services.User)
	snippetHandler := handlers.NewSnippetHandler(services.Snippet)
	userHandler := handlers.NewUserHandler(services.User)
	auditHandler := handlers.NewAuditHandler(services.Audit)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Tokens)

	authenticate := middleware.Auth(services.Tokens)
	audited := middleware.Audit(services.Recorder)
	limiter := middleware.NewRateLimiter(float64(cfg.AuthRateLimitPerSecond), cfg.AuthRateLimitBurst)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Session routes record their own audit entries.
		r.Route("/auth", func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/exchange", authHandler.Exchange)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Route("/snippets", func(r chi.Router) {
			r.Use(audited)
			r.Use(authenticate)
			r.Get("/", snippetHandler.List)
			r.Post("/", snippetHandler.Create)
			r.Get("/{id}", snippetHandler.Get)
			r.Put("/{id}", snippetHandler.Update)
			r.Delete("/{id}", snippetHandler.Delete)
			r.Post("/{id}/usage", snippetHandler.IncrementUsage)
		})

		r.Route("/user", func(r chi.Router) {
			r.With(authenticate).Post("/logout-all", authHandler.LogoutAll)

			r.Group(func(r chi.Router) {
				r.Use(audited)
				r.Use(authenticate)
				r.Get("/me", userHandler.Me)
				r.Get("/profile", userHandler.Me)
				r.Post("/sync", userHandler.Sync)
				r.Get("/stats", userHandler.Stats)
				r.Put("/login", userHandler.UpdateLastLogin)
				r.Delete("/account", userHandler.DeleteAccount)
			})
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/logs", auditHandler.Mine)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(cfg.IsAdmin))
				r.Get("/all", auditHandler.All)
				r.Get("/action/{action}", auditHandler.ByAction)
				r.Get("/resource/{resource}", auditHandler.ByResource)
				r.Get("/status/{status}", auditHandler.ByStatus)
				r.Get("/stats", auditHandler.Stats)
			})
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/henriksa/boss-launcher-webhook/internal/server/handler"
)

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(webhooks *handler.WebhookHandler, guard *sourceGuard, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Forwarding headers are resolved by sourceGuard, from trusted proxies only.
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1/webhook", func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Post("/github", webhooks.GitHub)
		r.Post("/gitlab", webhooks.GitLab)
	})

	return r
}

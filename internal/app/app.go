// Package app holds the assembled webhook launcher and its lifecycle.
package app

import (
	"log/slog"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/dispatch"
	"github.com/henriksa/boss-launcher-webhook/internal/jobs"
	"github.com/henriksa/boss-launcher-webhook/internal/queue"
	"github.com/henriksa/boss-launcher-webhook/internal/server"
	"github.com/henriksa/boss-launcher-webhook/internal/storage"
)

// App holds the main application components. The CLI uses the exported
// fields directly.
type App struct {
	Cfg      *config.Config
	Store    storage.Store
	Engine   *dispatch.Engine
	Window   *queue.Evaluator
	Launcher *jobs.Launcher
	Relayer  *jobs.Relayer
	Logger   *slog.Logger

	server *server.Server
}

// NewApp creates a new App.
func NewApp(
	cfg *config.Config,
	store storage.Store,
	engine *dispatch.Engine,
	window *queue.Evaluator,
	launcher *jobs.Launcher,
	relayer *jobs.Relayer,
	srv *server.Server,
	logger *slog.Logger,
) *App {
	return &App{
		Cfg:      cfg,
		Store:    store,
		Engine:   engine,
		Window:   window,
		Launcher: launcher,
		Relayer:  relayer,
		Logger:   logger,
		server:   srv,
	}
}

// Start runs the HTTP server and blocks until it stops.
func (a *App) Start() error {
	a.Logger.Info("starting boss-launcher-webhook",
		"server_port", a.Cfg.Server.Port,
		"boss_url", a.Cfg.Boss.URL,
		"max_workers", a.Cfg.Dispatch.MaxWorkers,
		"timezone", a.Cfg.Dispatch.Location.String())

	if err := a.server.Start(); err != nil {
		a.Logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts the server down first so no new events arrive, then waits for
// queued launches and relays to be delivered.
func (a *App) Stop() error {
	a.Logger.Info("shutting down boss-launcher-webhook")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.Launcher.Stop()
	a.Relayer.Stop()

	if serverErr != nil {
		return serverErr
	}
	a.Logger.Info("boss-launcher-webhook stopped")
	return nil
}

package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/wire"

	"github.com/henriksa/boss-launcher-webhook/internal/app"
	"github.com/henriksa/boss-launcher-webhook/internal/boss"
	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/db"
	"github.com/henriksa/boss-launcher-webhook/internal/dispatch"
	"github.com/henriksa/boss-launcher-webhook/internal/jobs"
	"github.com/henriksa/boss-launcher-webhook/internal/logger"
	"github.com/henriksa/boss-launcher-webhook/internal/queue"
	"github.com/henriksa/boss-launcher-webhook/internal/relay"
	"github.com/henriksa/boss-launcher-webhook/internal/revision"
	"github.com/henriksa/boss-launcher-webhook/internal/server"
	"github.com/henriksa/boss-launcher-webhook/internal/server/handler"
	"github.com/henriksa/boss-launcher-webhook/internal/storage"
)

const permissionCacheSize = 512

// AppSet is every provider needed to build an *app.App.
var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	handler.NewWebhookHandler,
	config.LoadConfig,
	db.NewDatabase,
	revision.NewTracker,
	provideLoggerConfig,
	provideLogWriter,
	provideSlogLogger,
	provideDBConfig,
	provideBossConfig,
	provideWebhookConfig,
	provideStore,
	provideBossClient,
	provideLauncher,
	provideRelayer,
	providePermissions,
	provideEvaluator,
	provideEngine,
	wire.Bind(new(core.MappingStore), new(storage.Store)),
	wire.Bind(new(core.RevisionStore), new(storage.Store)),
	wire.Bind(new(core.SourceStore), new(storage.Store)),
	wire.Bind(new(handler.Relayer), new(*jobs.Relayer)),
	wire.Bind(new(handler.Dispatcher), new(*dispatch.Engine)),
)

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideLogWriter(cfg *config.Config) (io.Writer, func(), error) {
	return logger.OpenOutput(cfg.Logging)
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	l := logger.NewLogger(loggerConfig, writer)
	slog.SetDefault(l)
	return l
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return &cfg.Database
}

func provideBossConfig(cfg *config.Config) *config.BossConfig {
	return &cfg.Boss
}

func provideWebhookConfig(cfg *config.Config) *config.WebhookConfig {
	return &cfg.Webhook
}

func provideStore(conn *db.DB) (storage.Store, error) {
	if err := conn.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return storage.NewStore(conn.DB), nil
}

func provideBossClient(ctx context.Context, cfg *config.BossConfig, logger *slog.Logger) *boss.Client {
	return boss.NewClient(ctx, cfg, logger)
}

func provideLauncher(cfg *config.Config, client *boss.Client, logger *slog.Logger) *jobs.Launcher {
	return jobs.NewLauncher(client, cfg.Boss.NotifyProcess, cfg.Boss.BuildProcess,
		cfg.Dispatch.MaxWorkers, cfg.Dispatch.QueueSize, logger)
}

func provideRelayer(cfg *config.WebhookConfig, logger *slog.Logger) *jobs.Relayer {
	return jobs.NewRelayer(relay.NewClient(cfg.RelayTimeout, logger), cfg.RelayWorkers, cfg.RelayQueueSize, logger)
}

func providePermissions(cfg *config.Config, store storage.Store) *storage.CachedPermissions {
	return storage.NewCachedPermissions(store, permissionCacheSize, cfg.Dispatch.PermissionCacheTTL)
}

func provideEvaluator(cfg *config.Config, perms *storage.CachedPermissions) *queue.Evaluator {
	return queue.NewEvaluator(cfg.Dispatch.Location, perms)
}

func provideEngine(tracker *revision.Tracker, store storage.Store, window *queue.Evaluator, launcher *jobs.Launcher, logger *slog.Logger) *dispatch.Engine {
	return dispatch.NewEngine(tracker, store, window, launcher, launcher, logger)
}

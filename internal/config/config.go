package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/henriksa/boss-launcher-webhook/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig
	Database DBConfig
	Logging  logger.Config
	Boss     BossConfig
	Webhook  WebhookConfig
	Dispatch DispatchConfig
	Mapping  MappingRules
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	SSLMode         string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// BossConfig points at the process launcher that runs notify and build participants.
type BossConfig struct {
	URL            string
	Token          string
	NotifyProcess  string
	BuildProcess   string
	RequestTimeout time.Duration
}

// WebhookConfig holds the shared secrets of the forges posting to us.
type WebhookConfig struct {
	GitHubSecret string
	GitLabToken  string

	// AllowedSources are IPs or CIDR ranges allowed to post hooks. Empty allows all.
	AllowedSources  []string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP. Empty trusts none.
	TrustedProxies  []string
	// RateLimitPerMin is per source address; 0 disables limiting.
	RateLimitPerMin int
	MaxPayloadBytes int64

	// RelayWorkers forward accepted hooks to relay targets.
	RelayWorkers   int
	RelayQueueSize int
	RelayTimeout   time.Duration
}

// DispatchConfig configures the decision engine and the async launcher.
type DispatchConfig struct {
	MaxWorkers         int
	QueueSize          int
	Location           *time.Location
	PermissionCacheTTL time.Duration
}

// MappingRules mirrors the admin-side validation switches used by the seed import.
type MappingRules struct {
	ServiceWhitelist bool
	StrictMappings   bool
	DefaultProject   string
}

var ErrMissingBossURL = errors.New("BOSS_URL must be set")

// LoadConfig reads configuration from environment variables and a .env file,
// sets defaults, and validates required fields. Environment variables take
// precedence over the file.
func LoadConfig() (*Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, file string) (*Config, error) {
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USERNAME", "webhook")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "webhook")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	v.SetDefault("BOSS_URL", "")
	v.SetDefault("BOSS_TOKEN", "")
	v.SetDefault("BOSS_NOTIFY_PROCESS", "notify")
	v.SetDefault("BOSS_BUILD_PROCESS", "build")
	v.SetDefault("BOSS_REQUEST_TIMEOUT", "30s")
	v.SetDefault("GITHUB_WEBHOOK_SECRET", "")
	v.SetDefault("GITLAB_WEBHOOK_TOKEN", "")
	v.SetDefault("WEBHOOK_ALLOWED_SOURCES", "")
	v.SetDefault("WEBHOOK_TRUSTED_PROXIES", "")
	v.SetDefault("WEBHOOK_RATE_LIMIT_PER_MIN", 0)
	v.SetDefault("WEBHOOK_MAX_PAYLOAD_BYTES", 5<<20)
	v.SetDefault("RELAY_WORKERS", 2)
	v.SetDefault("RELAY_QUEUE_SIZE", 100)
	v.SetDefault("RELAY_TIMEOUT", "10s")
	v.SetDefault("MAX_WORKERS", 5)
	v.SetDefault("QUEUE_SIZE", 100)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("PERMISSION_CACHE_TTL", "1m")
	v.SetDefault("SERVICE_WHITELIST", false)
	v.SetDefault("STRICT_MAPPINGS", false)
	v.SetDefault("DEFAULT_PROJECT", "")

	if err := v.ReadInConfig(); err != nil {
		slog.Debug("no config file loaded, using environment only", "file", file, "error", err)
	}

	if v.GetString("BOSS_URL") == "" {
		return nil, ErrMissingBossURL
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", v.GetString("TIMEZONE"), err)
	}

	maxWorkers := v.GetInt("MAX_WORKERS")
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("MAX_WORKERS must be positive, got %d", maxWorkers)
	}

	return &Config{
		Server: ServerConfig{
			Port: v.GetString("SERVER_PORT"),
		},
		Database: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USERNAME"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Logging: logger.Config{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		Boss: BossConfig{
			URL:            strings.TrimSuffix(v.GetString("BOSS_URL"), "/"),
			Token:          v.GetString("BOSS_TOKEN"),
			NotifyProcess:  v.GetString("BOSS_NOTIFY_PROCESS"),
			BuildProcess:   v.GetString("BOSS_BUILD_PROCESS"),
			RequestTimeout: v.GetDuration("BOSS_REQUEST_TIMEOUT"),
		},
		Webhook: WebhookConfig{
			GitHubSecret:    v.GetString("GITHUB_WEBHOOK_SECRET"),
			GitLabToken:     v.GetString("GITLAB_WEBHOOK_TOKEN"),
			AllowedSources:  splitList(v.GetString("WEBHOOK_ALLOWED_SOURCES")),
			TrustedProxies:  splitList(v.GetString("WEBHOOK_TRUSTED_PROXIES")),
			RateLimitPerMin: v.GetInt("WEBHOOK_RATE_LIMIT_PER_MIN"),
			MaxPayloadBytes: v.GetInt64("WEBHOOK_MAX_PAYLOAD_BYTES"),
			RelayWorkers:    v.GetInt("RELAY_WORKERS"),
			RelayQueueSize:  v.GetInt("RELAY_QUEUE_SIZE"),
			RelayTimeout:    v.GetDuration("RELAY_TIMEOUT"),
		},
		Dispatch: DispatchConfig{
			MaxWorkers:         maxWorkers,
			QueueSize:          v.GetInt("QUEUE_SIZE"),
			Location:           loc,
			PermissionCacheTTL: v.GetDuration("PERMISSION_CACHE_TTL"),
		},
		Mapping: MappingRules{
			ServiceWhitelist: v.GetBool("SERVICE_WHITELIST"),
			StrictMappings:   v.GetBool("STRICT_MAPPINGS"),
			DefaultProject:   v.GetString("DEFAULT_PROJECT"),
		},
	}, nil
}

// splitList splits a comma separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all agent configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Authority AuthorityConfig
	Sync      SyncConfig
	Shift     ShiftConfig
	QueueDB   QueueDBConfig
	Counters  CountersConfig
}

// ServerConfig holds settings for the local HTTP API the UI layer talks to.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"7420"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"ruteo-sync-agent"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"2.0.0"`
	// DeviceID overrides the generated device identity (fleet-managed installs).
	DeviceID string `envconfig:"DEVICE_ID" default:""`
}

// AuthorityConfig holds settings for the remote sales authority.
type AuthorityConfig struct {
	BaseURL       string        `envconfig:"AUTHORITY_BASE_URL" default:"https://api.ruteo.local"`
	APIKey        string        `envconfig:"AUTHORITY_API_KEY" default:""`
	BaseTimeout   time.Duration `envconfig:"AUTHORITY_BASE_TIMEOUT" default:"10s"`
	MaxTimeout    time.Duration `envconfig:"AUTHORITY_MAX_TIMEOUT" default:"45s"`
	VerifyRetries int           `envconfig:"AUTHORITY_VERIFY_RETRIES" default:"3"`
	VerifyBackoff time.Duration `envconfig:"AUTHORITY_VERIFY_BACKOFF" default:"500ms"`
}

// SyncConfig holds settings for the background sync scheduler.
type SyncConfig struct {
	Interval time.Duration `envconfig:"SYNC_INTERVAL" default:"5s"`
	// MaxAttempts bounds per-record retries before a record is reported as
	// stalled. 0 means retry forever (never abandon a sale).
	MaxAttempts int `envconfig:"SYNC_MAX_ATTEMPTS" default:"0"`
	// ProbeInterval is how often the connectivity monitor probes the authority.
	ProbeInterval time.Duration `envconfig:"SYNC_PROBE_INTERVAL" default:"3s"`
	// FlapWindow coalesces reachability transitions closer together than this.
	FlapWindow time.Duration `envconfig:"SYNC_FLAP_WINDOW" default:"1s"`
}

// ShiftConfig holds shift lifecycle settings.
type ShiftConfig struct {
	// StaleWindow is how long a locally persisted shift snapshot is trusted
	// while the authority is unreachable.
	StaleWindow time.Duration `envconfig:"SHIFT_STALE_WINDOW" default:"72h"`
}

// QueueDBConfig holds durable store settings.
type QueueDBConfig struct {
	Type string `envconfig:"QUEUE_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"QUEUE_DB_PATH" default:"./data/queue.db"`
	// MySQL settings (depot-hosted installs sharing one database)
	Host     string `envconfig:"QUEUE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"QUEUE_DB_PORT" default:"3306"`
	Name     string `envconfig:"QUEUE_DB_NAME" default:"ruteo"`
	User     string `envconfig:"QUEUE_DB_USER" default:"root"`
	Password string `envconfig:"QUEUE_DB_PASS" default:""`
}

// CountersConfig holds per-day sale counter settings.
type CountersConfig struct {
	Type string `envconfig:"COUNTERS_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN returns the MySQL data source name.
func (q *QueueDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		q.User, q.Password, q.Host, q.Port, q.Name)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CountersConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Package config loads replicore's daemon configuration from an optional
// YAML file plus environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the REST API HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
	// RateLimitRPS is the sustained per-caller request budget; 0 disables
	// rate limiting entirely.
	RateLimitRPS   float64 `json:"rate_limit_rps" env:"SERVER_RATE_LIMIT_RPS"`
	RateLimitBurst int     `json:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST"`
}

// DatabaseConfig controls the Postgres-backed persistent store.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" mapstructure:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a PostgreSQL connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// CoordinatorConfig controls the etcd-backed election/lock coordinator.
type CoordinatorConfig struct {
	Endpoints   []string      `json:"endpoints" mapstructure:"endpoints" env:"COORDINATOR_ENDPOINTS"`
	DialTimeout time.Duration `json:"dial_timeout" mapstructure:"dial_timeout" env:"COORDINATOR_DIAL_TIMEOUT"`
	SessionTTL  int           `json:"session_ttl_seconds" mapstructure:"session_ttl_seconds" env:"COORDINATOR_SESSION_TTL_SECONDS"`
	Namespace   string        `json:"namespace" env:"COORDINATOR_NAMESPACE"`
}

// TaskQueueConfig controls the Redis-backed task queue.
type TaskQueueConfig struct {
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr" env:"TASKQUEUE_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password" env:"TASKQUEUE_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db" env:"TASKQUEUE_REDIS_DB"`
	Concurrency   int    `json:"concurrency" env:"TASKQUEUE_CONCURRENCY"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// AuthConfig controls HTTP API authentication for the REST surface.
type AuthConfig struct {
	Tokens      []string      `json:"tokens" mapstructure:"tokens" env:"AUTH_TOKENS"`
	JWTSecret   string        `json:"jwt_secret" mapstructure:"jwt_secret" env:"AUTH_JWT_SECRET"`
	TokenExpiry time.Duration `json:"token_expiry" mapstructure:"token_expiry" env:"AUTH_TOKEN_EXPIRY"`
}

// SchedulerConfig tunes the discovery and orchestrator polling loops
// (spec.md §4.9).
type SchedulerConfig struct {
	DiscoveryTick    time.Duration `json:"discovery_tick" mapstructure:"discovery_tick" env:"SCHEDULER_DISCOVERY_TICK"`
	OrchestratorTick time.Duration `json:"orchestrator_tick" mapstructure:"orchestrator_tick" env:"SCHEDULER_ORCHESTRATOR_TICK"`
}

// Config is the top-level configuration structure for the replicore daemon.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	TaskQueue   TaskQueueConfig   `json:"task_queue" mapstructure:"task_queue"`
	Logging     LoggingConfig     `json:"logging"`
	Auth        AuthConfig        `json:"auth"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Coordinator: CoordinatorConfig{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
			SessionTTL:  15,
			Namespace:   "replicore",
		},
		TaskQueue: TaskQueueConfig{
			RedisAddr:   "localhost:6379",
			Concurrency: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "replicore",
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			DiscoveryTick:    30 * time.Second,
			OrchestratorTick: 10 * time.Second,
		},
	}
}

// Load loads configuration from an optional file (CONFIG_FILE, defaulting to
// configs/config.yaml) and then applies environment variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting every variable.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, ignoring a missing file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// LoadConfig reads a JSON configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN,
// matching how most Postgres-as-a-service providers hand out credentials.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// Validate rejects configurations that cannot start safely.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if len(c.Coordinator.Endpoints) == 0 {
		return fmt.Errorf("coordinator.endpoints must not be empty")
	}
	if c.TaskQueue.RedisAddr == "" {
		return fmt.Errorf("task_queue.redis_addr must not be empty")
	}
	return nil
}

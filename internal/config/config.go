// Package config loads runtime configuration with the precedence
// runtime overrides > environment > file > defaults.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "TICKETOPS"

// Config is the full runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Health  HealthConfig  `mapstructure:"health"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig configures job persistence and the demo ticket seed.
type StoreConfig struct {
	// Path is the sqlite database file. Empty selects the per-user
	// application data directory; ":memory:" selects an ephemeral store.
	Path string `mapstructure:"path"`

	// Seed is an optional YAML seed file for the in-memory ticket store.
	Seed string `mapstructure:"seed"`
}

// EngineConfig configures the batch executor and the task queue.
type EngineConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueBuffer int           `mapstructure:"queue_buffer"`
	Delay       time.Duration `mapstructure:"delay"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"` // STRUCTURED or CLI
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// Load builds the configuration. Optional overrides maps are applied last
// and win over environment variables and defaults.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("apply config overrides: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.Path == "" {
		dataDir := gfconfig.GetAppDataDir("ticketops")
		cfg.Store.Path = filepath.Join(dataDir, "jobs.db")
	}

	mu.Lock()
	current = &cfg
	mu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil when
// Load has not run.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.path", "")
	v.SetDefault("store.seed", "")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_buffer", 64)
	v.SetDefault("engine.delay", time.Second)
	v.SetDefault("engine.cooldown", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("health.enabled", true)
}

// bindEnvAliases maps the short operational env var names onto their
// config keys, e.g. TICKETOPS_PORT instead of TICKETOPS_SERVER_PORT.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"server.host":             "TICKETOPS_HOST",
		"server.port":             "TICKETOPS_PORT",
		"server.read_timeout":     "TICKETOPS_READ_TIMEOUT",
		"server.write_timeout":    "TICKETOPS_WRITE_TIMEOUT",
		"server.shutdown_timeout": "TICKETOPS_SHUTDOWN_TIMEOUT",
		"store.path":              "TICKETOPS_DB_PATH",
		"store.seed":              "TICKETOPS_SEED",
		"engine.workers":          "TICKETOPS_WORKERS",
		"engine.delay":            "TICKETOPS_DELAY",
		"engine.cooldown":         "TICKETOPS_COOLDOWN",
		"logging.level":           "TICKETOPS_LOG_LEVEL",
		"logging.profile":         "TICKETOPS_LOG_PROFILE",
		"health.enabled":          "TICKETOPS_HEALTH_ENABLED",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, env)
	}
}

// EnvAliases lists the supported operational environment variables.
func EnvAliases() []string {
	return []string{
		"TICKETOPS_HOST",
		"TICKETOPS_PORT",
		"TICKETOPS_READ_TIMEOUT",
		"TICKETOPS_WRITE_TIMEOUT",
		"TICKETOPS_SHUTDOWN_TIMEOUT",
		"TICKETOPS_DB_PATH",
		"TICKETOPS_SEED",
		"TICKETOPS_WORKERS",
		"TICKETOPS_DELAY",
		"TICKETOPS_COOLDOWN",
		"TICKETOPS_LOG_LEVEL",
		"TICKETOPS_LOG_PROFILE",
		"TICKETOPS_HEALTH_ENABLED",
	}
}

// Package config loads NodeSpace's configuration from a YAML file plus
// NODESPACE_-prefixed environment overrides, the same viper-over-a-typed-
// struct pattern the wider pack's CLI tools use for their daemon config.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for a NodeSpace core instance.
type Config struct {
	// StoragePath is the SQLite database file. ":memory:" for ephemeral/test use.
	StoragePath string `mapstructure:"storage_path"`

	// MaxWriters bounds the storage engine's concurrent-write semaphore.
	// Defaults to the smaller of 4 and the physical parallelism;
	// overridable via NODESPACE_MAX_WRITERS.
	MaxWriters int `mapstructure:"max_writers"`

	// BusyTimeout is the SQLite busy_timeout pragma value.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// DebounceWindow is the trailing debounce window for content edits.
	DebounceWindow time.Duration `mapstructure:"debounce_window"`

	// BatchWindow is the coalescing window for bulk pattern conversions.
	BatchWindow time.Duration `mapstructure:"batch_window"`

	// MaxRetryAttempts bounds the OCC retry loop on structural writes.
	MaxRetryAttempts int `mapstructure:"max_retry_attempts"`

	// RetryBaseDelay is the base of the jittered exponential backoff.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// ShutdownGrace bounds how long graceful shutdown waits to drain pending work.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`

	// HTTPAddr, if non-empty, starts the dev-server HTTP adapter alongside MCP.
	HTTPAddr string `mapstructure:"http_addr"`

	// EventHistorySize is the capped ring buffer size for the event bus.
	EventHistorySize int `mapstructure:"event_history_size"`
}

// Default returns the engine's documented defaults.
func Default() Config {
	return Config{
		StoragePath:      "nodespace.db",
		MaxWriters:       defaultMaxWriters(),
		BusyTimeout:      5 * time.Second,
		DebounceWindow:   500 * time.Millisecond,
		BatchWindow:      2000 * time.Millisecond,
		MaxRetryAttempts: 5,
		RetryBaseDelay:   10 * time.Millisecond,
		ShutdownGrace:    5 * time.Second,
		EventHistorySize: 1000,
	}
}

func defaultMaxWriters() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// Load reads configPath (if non-empty and present) and overlays
// NODESPACE_-prefixed environment variables, falling back to Default() for
// anything unset.
func Load(configPath string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("storage_path", def.StoragePath)
	v.SetDefault("max_writers", def.MaxWriters)
	v.SetDefault("busy_timeout", def.BusyTimeout)
	v.SetDefault("debounce_window", def.DebounceWindow)
	v.SetDefault("batch_window", def.BatchWindow)
	v.SetDefault("max_retry_attempts", def.MaxRetryAttempts)
	v.SetDefault("retry_base_delay", def.RetryBaseDelay)
	v.SetDefault("shutdown_grace", def.ShutdownGrace)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("event_history_size", def.EventHistorySize)

	v.SetEnvPrefix("NODESPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.MaxWriters <= 0 {
		cfg.MaxWriters = defaultMaxWriters()
	}
	return cfg, nil
}

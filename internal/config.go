package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Modules ModulesConfig     `yaml:"modules"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Index   IndexConfig       `yaml:"index"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Modules.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Index.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ModulesConfig holds the path to the directory of module definition files.
// The directory may be absent; the engine then runs with the default module
// only.
type ModulesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the modules configuration.
func (c *ModulesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig tunes the reindex pipeline.
type IndexConfig struct {
	// DebounceMS is the per-path coalescing window in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`
	// QueueSize bounds the watcher event channel.
	QueueSize int `yaml:"queue_size"`
	// SweepIntervalS is the periodic reconciliation interval in seconds;
	// 0 disables the sweep.
	SweepIntervalS int `yaml:"sweep_interval_s"`
	// MaxRetries caps store-error retries per change.
	MaxRetries int `yaml:"max_retries"`
}

// Debounce returns the coalescing window as a duration.
func (c *IndexConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// SweepInterval returns the reconciliation interval as a duration.
func (c *IndexConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepIntervalS, validation.Min(0)),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Modules: ModulesConfig{
			Path: "./modules",
		},
		SQLite: SQLiteConfig{
			Path: "./commonplace.db",
		},
		Index: IndexConfig{
			DebounceMS:     250,
			QueueSize:      256,
			SweepIntervalS: 300,
			MaxRetries:     5,
		},
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrNotFound is returned by Load when no configuration file exists yet.
var ErrNotFound = errors.New("configuration file not found")

// DefaultFileName is the configuration file searched for in the home
// directory when no explicit path is given.
const DefaultFileName = ".compose-backup.yaml"

// Compression algorithms supported for archives
const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// Config is the immutable configuration record for one backup pass.
// It is loaded once at startup and passed explicitly into every component.
type Config struct {
	SourcePath     string        `mapstructure:"source_path"`
	DestPath       string        `mapstructure:"dest_path"`
	LoggingEnabled bool          `mapstructure:"logging_enabled"`
	LogFile        string        `mapstructure:"log_file"`
	ExcludedNames  []string      `mapstructure:"excluded_names"`
	RetentionCount int           `mapstructure:"retention_count"` // 0 = unlimited
	Compression    string        `mapstructure:"compression"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

// ExcludeSet provides membership semantics for excluded folder names
type ExcludeSet map[string]struct{}

// NewExcludeSet builds a set from a list of folder names
func NewExcludeSet(names []string) ExcludeSet {
	set := make(ExcludeSet, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Contains reports whether a folder name is excluded
func (s ExcludeSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Excludes returns the configured excluded names as a set
func (c *Config) Excludes() ExcludeSet {
	return NewExcludeSet(c.ExcludedNames)
}

// Validate checks the configuration for use by a backup pass
func (c *Config) Validate() error {
	if c.SourcePath == "" {
		return fmt.Errorf("source path is required")
	}
	if c.DestPath == "" {
		return fmt.Errorf("destination path is required")
	}
	if c.RetentionCount < 0 {
		return fmt.Errorf("retention count must be positive when set, got %d", c.RetentionCount)
	}
	switch c.Compression {
	case "", CompressionGzip, CompressionZstd, CompressionLZ4:
	default:
		return fmt.Errorf("unsupported compression %q, must be one of: gzip, zstd, lz4", c.Compression)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop timeout must not be negative")
	}
	return nil
}

// ApplyDefaults fills unset optional fields
func (c *Config) ApplyDefaults() {
	if c.Compression == "" {
		c.Compression = CompressionGzip
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 60 * time.Second
	}
}

// DefaultPath returns the default configuration file location
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Load reads the configuration from the given path, or from the default
// location when path is empty. Returns ErrNotFound when no file exists;
// the caller is expected to run the setup wizard in that case.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(defaultPath)
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("COMPOSE_BACKUP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Save persists the configuration to the given path (default location when
// empty). Persisting happens once per logical operation; the in-memory
// record is the single source of truth until then.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid configuration: %w", err)
	}

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("source_path", cfg.SourcePath)
	v.Set("dest_path", cfg.DestPath)
	v.Set("logging_enabled", cfg.LoggingEnabled)
	v.Set("log_file", cfg.LogFile)
	v.Set("excluded_names", cfg.ExcludedNames)
	v.Set("retention_count", cfg.RetentionCount)
	v.Set("compression", cfg.Compression)
	v.Set("stop_timeout", cfg.StopTimeout.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write configuration to %s: %w", path, err)
	}

	return nil
}

// Package config loads displayhold settings from TOML, DISPLAYHOLD_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/displayhold/internal/env"
	"github.com/loykin/displayhold/internal/ipc"
	"github.com/loykin/displayhold/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. DISPLAYHOLD_IPC_TIMEOUT.
const EnvPrefix = "DISPLAYHOLD"

// Config represents the top-level TOML structure.
type Config struct {
	IPC     IPCConfig     `toml:"ipc" mapstructure:"ipc"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Launch  LaunchConfig  `toml:"launch" mapstructure:"launch"`
}

// IPCConfig controls channel naming and discovery.
type IPCConfig struct {
	Prefix      string        `toml:"prefix" mapstructure:"prefix"`
	Dir         string        `toml:"dir" mapstructure:"dir"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	Concurrency int           `toml:"concurrency" mapstructure:"concurrency"`
	SameImage   bool          `toml:"same_image" mapstructure:"same_image"`
}

func (c IPCConfig) Addressing() ipc.Addressing {
	return ipc.Addressing{Prefix: c.Prefix, Dir: c.Dir}
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
	// HoldSampleInterval is how often the held process is sampled.
	HoldSampleInterval time.Duration `toml:"hold_sample_interval" mapstructure:"hold_sample_interval"`
	HoldSampleHistory  int           `toml:"hold_sample_history" mapstructure:"hold_sample_history"`
}

type LaunchConfig struct {
	HoldPollInterval     time.Duration `toml:"hold_poll_interval" mapstructure:"hold_poll_interval"`
	Detached             bool          `toml:"detached" mapstructure:"detached"`
	ApplyProfileCommand  string        `toml:"apply_profile_command" mapstructure:"apply_profile_command"`
	RevertProfileCommand string        `toml:"revert_profile_command" mapstructure:"revert_profile_command"`
	UseOSEnv             bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	Env                  []string      `toml:"env" mapstructure:"env"`
	EnvFiles             []string      `toml:"env_files" mapstructure:"env_files"`
}

// BuildEnv merges env_files (in order) and env entries into an env.Env.
// Later entries override earlier ones.
func (c LaunchConfig) BuildEnv() (*env.Env, error) {
	e := env.New(c.UseOSEnv)
	for _, p := range c.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
	}
	e.SetPairs(c.Env)
	return e, nil
}

// DefaultDataDir is where the shortcut database lives unless configured.
func DefaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "displayhold")
	}
	return filepath.Join(os.TempDir(), "displayhold")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ipc.prefix", ipc.DefaultPrefix)
	v.SetDefault("ipc.dir", "")
	v.SetDefault("ipc.timeout", "500ms")
	v.SetDefault("ipc.concurrency", 8)
	v.SetDefault("ipc.same_image", true)

	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.app_file", "")
	v.SetDefault("log.file.stdout_path", "")
	v.SetDefault("log.file.stderr_path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("store.dsn", filepath.Join(DefaultDataDir(), "shortcuts.db"))

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9466")
	v.SetDefault("metrics.hold_sample_interval", "5s")
	v.SetDefault("metrics.hold_sample_history", 120)

	v.SetDefault("launch.hold_poll_interval", "500ms")
	v.SetDefault("launch.detached", true)
	v.SetDefault("launch.apply_profile_command", "")
	v.SetDefault("launch.revert_profile_command", "")
	v.SetDefault("launch.use_os_env", true)
	v.SetDefault("launch.env", []string{})
	v.SetDefault("launch.env_files", []string{})
}

// Default returns the built-in configuration without file or environment
// overrides.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads path (TOML) when non-empty, applies DISPLAYHOLD_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.IPC.Timeout <= 0 {
		errs = append(errs, errors.New("ipc.timeout must be positive"))
	}
	if c.IPC.Concurrency <= 0 {
		errs = append(errs, errors.New("ipc.concurrency must be positive"))
	}
	if strings.ContainsAny(c.IPC.Prefix, `/\`) {
		errs = append(errs, fmt.Errorf("ipc.prefix %q must not contain path separators", c.IPC.Prefix))
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store.dsn required"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn required when history is enabled"))
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		errs = append(errs, errors.New("metrics.listen required when metrics are enabled"))
	}
	if c.Launch.HoldPollInterval <= 0 {
		errs = append(errs, errors.New("launch.hold_poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

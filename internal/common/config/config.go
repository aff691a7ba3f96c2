package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidInterval    = errors.New("schedule interval is not a valid duration")
	ErrInvalidStepTimeout = errors.New("step timeout is not a valid duration")
	ErrInvalidProbeURL    = errors.New("pre-flight probe URL is invalid")
	ErrNegativeDiskFloor  = errors.New("disk floor must not be negative")
)

// DefaultInterval is the time that must elapse since the last successful
// cycle before a new one is due. Kept just under a week so a weekly cadence
// never drifts into being permanently a little late.
const DefaultInterval = 6 * 24 * time.Hour

// Config represents the application configuration
type Config struct {
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Apt       AptConfig       `yaml:"apt"`
	Flatpak   FlatpakConfig   `yaml:"flatpak"`
	Preflight PreflightConfig `yaml:"preflight"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
	Hooks     HooksConfig     `yaml:"hooks"`
	History   HistoryConfig   `yaml:"history"`
}

// ScheduleConfig controls when a maintenance cycle is due
type ScheduleConfig struct {
	// Interval between successful cycles, as a Go duration string ("144h").
	// Empty selects the built-in default of six days.
	Interval string `yaml:"interval,omitempty"`
	// RecordPath is the run-record file holding the last success timestamp
	RecordPath string `yaml:"record_path,omitempty"`
	// StepTimeout bounds each external command; empty or "0" disables
	StepTimeout string `yaml:"step_timeout,omitempty"`
}

// AptConfig holds apt settings
type AptConfig struct {
	// Binary overrides the apt-get executable (default "apt-get")
	Binary string `yaml:"binary,omitempty"`
}

// FlatpakConfig holds Flatpak settings
type FlatpakConfig struct {
	Enabled bool `yaml:"enabled"`
	// Binary overrides the flatpak executable (default "flatpak")
	Binary string `yaml:"binary,omitempty"`
}

// PreflightConfig holds pre-flight check settings
type PreflightConfig struct {
	// ProbeURL is fetched once (HEAD) to confirm the network is reachable
	ProbeURL string `yaml:"probe_url,omitempty"`
	// ProbeTimeout bounds the probe request (default 10s)
	ProbeTimeout string `yaml:"probe_timeout,omitempty"`
	// DiskPath is the filesystem checked for free space
	DiskPath string `yaml:"disk_path,omitempty"`
	// MinFreeMB is the free-space floor in MiB below which the run aborts
	MinFreeMB int64 `yaml:"min_free_mb,omitempty"`
}

// LogConfig holds log file settings
type LogConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// NotifyConfig holds desktop notification settings
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HooksConfig points at the optional hooks catalog
type HooksConfig struct {
	Path string `yaml:"path,omitempty"`
}

// HistoryConfig holds cycle history settings
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Default returns the configuration used when no file exists yet.
// Paths follow the XDG base directory layout.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			RecordPath: filepath.Join(stateDirUnexpanded(), "lastrun"),
		},
		Flatpak: FlatpakConfig{Enabled: true},
		Preflight: PreflightConfig{
			ProbeURL:  "https://deb.debian.org",
			DiskPath:  "/var/cache/apt/archives",
			MinFreeMB: 1024,
		},
		Log: LogConfig{
			Path: filepath.Join(stateDirUnexpanded(), "upkeep.log"),
		},
		Notify: NotifyConfig{Enabled: true},
		History: HistoryConfig{
			Path: filepath.Join(stateDirUnexpanded(), "history.json"),
		},
	}
}

// stateDirUnexpanded returns the per-user state directory for run records,
// logs and history. XDG_STATE_HOME is the standard location for this kind
// of runtime data.
func stateDirUnexpanded() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "upkeep")
	}
	return filepath.Join("~", ".local", "state", "upkeep")
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/upkeep/config.yaml (XDG standard - priority)
// 2. ~/.upkeep/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	// Check XDG_CONFIG_HOME first, fallback to ~/.config
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "upkeep", "config.yaml"),
		filepath.Join(home, ".upkeep", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// DefaultHooksPath returns the default hooks catalog path next to the config
func DefaultHooksPath() (string, error) {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), "hooks.toml"), nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	// Return first existing config file
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// No config exists, return default (XDG) path for creation
	return paths[0], nil
}

// Load reads configuration from the first available config file
// Priority: ~/.config/upkeep/config.yaml > ~/.upkeep/config.yaml
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path.
// Defaults are applied first, so a partial file only overrides what it names.
// A missing file is created with the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Interval returns the configured time between successful cycles.
// Unset or unparsable values fall back to the six-day default.
func (c *Config) Interval() time.Duration {
	if c.Schedule.Interval != "" {
		if d, err := time.ParseDuration(c.Schedule.Interval); err == nil && d > 0 {
			return d
		}
	}
	return DefaultInterval
}

// StepTimeout returns the per-command deadline; zero disables it.
func (c *Config) StepTimeout() time.Duration {
	if c.Schedule.StepTimeout != "" {
		if d, err := time.ParseDuration(c.Schedule.StepTimeout); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// ProbeTimeout returns the network probe deadline (default 10s).
func (c *Config) ProbeTimeout() time.Duration {
	if c.Preflight.ProbeTimeout != "" {
		if d, err := time.ParseDuration(c.Preflight.ProbeTimeout); err == nil && d > 0 {
			return d
		}
	}
	return 10 * time.Second
}

// RecordPath returns the run-record path with ~ expanded
func (c *Config) RecordPath() (string, error) {
	return ExpandPath(c.Schedule.RecordPath)
}

// LogPath returns the log file path with ~ expanded
func (c *Config) LogPath() (string, error) {
	return ExpandPath(c.Log.Path)
}

// HistoryPath returns the history file path with ~ expanded
func (c *Config) HistoryPath() (string, error) {
	return ExpandPath(c.History.Path)
}

// HooksPath returns the hooks catalog path with ~ expanded.
// When unset, the default location next to the config file is used.
func (c *Config) HooksPath() (string, error) {
	if c.Hooks.Path == "" {
		return DefaultHooksPath()
	}
	return ExpandPath(c.Hooks.Path)
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Validate checks the configuration for values that cannot work.
// Empty optional values are fine; set values must parse.
func (c *Config) Validate() error {
	if c.Schedule.Interval != "" {
		if d, err := time.ParseDuration(c.Schedule.Interval); err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidInterval, c.Schedule.Interval)
		}
	}
	if c.Schedule.StepTimeout != "" {
		if _, err := time.ParseDuration(c.Schedule.StepTimeout); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidStepTimeout, c.Schedule.StepTimeout)
		}
	}
	if c.Preflight.ProbeURL != "" {
		u, err := url.Parse(c.Preflight.ProbeURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidProbeURL, c.Preflight.ProbeURL)
		}
	}
	if c.Preflight.MinFreeMB < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeDiskFloor, c.Preflight.MinFreeMB)
	}
	return nil
}

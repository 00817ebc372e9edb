package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

const (
	AppDir       = "shutdown-scheduler"
	RegistryFile = "taskDatabase.json"
)

// DefaultStorePath is <user config dir>/shutdown-scheduler/taskDatabase.json,
// falling back to the working directory when no config dir is known.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", AppDir, RegistryFile)
	}
	return filepath.Join(dir, AppDir, RegistryFile)
}

// DefaultConfigPath is <user config dir>/shutdown-scheduler/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", AppDir, "config.yaml")
	}
	return filepath.Join(dir, AppDir, "config.yaml")
}

func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Storage:  StorageConfig{Driver: "file", Path: DefaultStorePath()},
		Dispatch: DispatchConfig{Backend: "auto", Timeout: "30s", RatePerSec: 5},
		Status:   StatusConfig{Refresh: "1m", Poll: "1s"},
		Tasks:    TasksConfig{Prefix: task.DefaultPrefix},
	}
}

// applyDefaults fills fields left empty in a parsed file.
func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if strings.TrimSpace(cfg.Dispatch.Backend) == "" {
		cfg.Dispatch.Backend = def.Dispatch.Backend
	}
	if strings.TrimSpace(cfg.Dispatch.Timeout) == "" {
		cfg.Dispatch.Timeout = def.Dispatch.Timeout
	}
	if cfg.Dispatch.RatePerSec == 0 {
		cfg.Dispatch.RatePerSec = def.Dispatch.RatePerSec
	}
	if strings.TrimSpace(cfg.Status.Refresh) == "" {
		cfg.Status.Refresh = def.Status.Refresh
	}
	if strings.TrimSpace(cfg.Status.Poll) == "" {
		cfg.Status.Poll = def.Status.Poll
	}
	if strings.TrimSpace(cfg.Tasks.Prefix) == "" {
		cfg.Tasks.Prefix = def.Tasks.Prefix
	}
}

// Validate checks values that cannot be caught by the strict decoder.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Dispatch.Backend)) {
	case "auto", "unix", "at", "cron", "taskdef":
	default:
		errs = append(errs, fmt.Errorf("dispatch.backend: unknown backend %q", cfg.Dispatch.Backend))
	}
	if cfg.Dispatch.RatePerSec < 0 {
		errs = append(errs, errors.New("dispatch.rate_per_sec must be >= 0"))
	}
	prefix := strings.TrimSpace(cfg.Tasks.Prefix)
	if strings.ContainsAny(prefix, " \t#") {
		errs = append(errs, fmt.Errorf("tasks.prefix %q must not contain whitespace or '#'", prefix))
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"dispatch.timeout":     cfg.Dispatch.Timeout,
		"status.refresh":       cfg.Status.Refresh,
		"status.poll":          cfg.Status.Poll,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseDurationField parses a Go duration; empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr returns the parsed duration, or def when empty, zero or invalid.
// Validate reports invalid values; callers use this after validation.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LogConfig maps the logging section to the logger configuration.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

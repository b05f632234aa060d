package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/platform"
)

// ActorConfig controls the thread that owns the shell objects.
type ActorConfig struct {
	MaxAttempts int    `yaml:"max_attempts"` // 1-10
	Priority    string `yaml:"priority"`     // normal, above_normal, highest, time_critical
}

// ListenerConfig controls the notification listener.
type ListenerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`     // 500ms-1m
	EventBuffer int           `yaml:"event_buffer"` // Recent events kept for RECENT_EVENTS.
}

// MonitorConfig controls the daemon's health probe.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// JournalConfig configures the desktop action journal
type JournalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	File      string `yaml:"file"`        // Empty = <UserCacheDir>/winvd/events.log
	Level     string `yaml:"level"`       // debug, info, warn, error
	MaxSizeMB int    `yaml:"max_size_mb"` // Rotate at this size
	MaxFiles  int    `yaml:"max_files"`   // Rotated files kept
}

// Config is the effective winvd configuration.
type Config struct {
	LogLevel   string         `yaml:"log_level"`
	SocketPath string         `yaml:"socket_path"`
	Actor      ActorConfig    `yaml:"actor"`
	Listener   ListenerConfig `yaml:"listener"`
	Monitor    MonitorConfig  `yaml:"monitor"`
	Journal    JournalConfig  `yaml:"journal"`
}

const (
	minListenInterval = 500 * time.Millisecond
	maxListenInterval = time.Minute
	minMonitorPeriod  = time.Second
	maxActorAttempts  = 10
)

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Actor: ActorConfig{
			MaxAttempts: 5,
			Priority:    "time_critical",
		},
		Listener: ListenerConfig{
			Enabled:     true,
			Interval:    3 * time.Second,
			EventBuffer: 64,
		},
		Monitor: MonitorConfig{
			Interval: 10 * time.Second,
		},
		Journal: JournalConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Save writes the configuration to the standard location.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if c.Actor.MaxAttempts < 1 || c.Actor.MaxAttempts > maxActorAttempts {
		return &ValidationError{Path: "actor.max_attempts", Err: fmt.Errorf("max_attempts must be between 1 and %d", maxActorAttempts)}
	}
	if _, ok := platform.ParsePriority(c.Actor.Priority); !ok {
		return &ValidationError{Path: "actor.priority", Err: fmt.Errorf("priority must be one of: normal, above_normal, highest, time_critical")}
	}
	if c.Listener.Interval < minListenInterval || c.Listener.Interval > maxListenInterval {
		return &ValidationError{Path: "listener.interval", Err: fmt.Errorf("interval must be between %s and %s", minListenInterval, maxListenInterval)}
	}
	if c.Listener.EventBuffer < 1 {
		return &ValidationError{Path: "listener.event_buffer", Err: fmt.Errorf("event_buffer must be >= 1")}
	}
	if c.Monitor.Interval < minMonitorPeriod {
		return &ValidationError{Path: "monitor.interval", Err: fmt.Errorf("interval must be >= %s", minMonitorPeriod)}
	}
	switch c.Journal.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "journal.level", Err: fmt.Errorf("level must be one of: debug, info, warn, error")}
	}
	if c.Journal.MaxSizeMB < 1 {
		return &ValidationError{Path: "journal.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 1")}
	}
	if c.Journal.MaxFiles < 1 {
		return &ValidationError{Path: "journal.max_files", Err: fmt.Errorf("max_files must be >= 1")}
	}
	return nil
}

// Priority returns the actor thread priority.
func (c *Config) Priority() platform.Priority {
	p, _ := platform.ParsePriority(c.Actor.Priority)
	return p
}

// SlogLevel maps log_level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetJournalConfig returns the journal settings with the file path filled in.
func (c *Config) GetJournalConfig() journal.Config {
	path := c.Journal.File
	if path == "" {
		if cacheDir, err := os.UserCacheDir(); err == nil {
			path = filepath.Join(cacheDir, "winvd", "events.log")
		} else {
			path = filepath.Join(os.TempDir(), "winvd", "events.log")
		}
	}
	return journal.Config{
		Enabled:   c.Journal.Enabled,
		Level:     journal.ParseLevel(c.Journal.Level),
		FilePath:  path,
		MaxSizeMB: c.Journal.MaxSizeMB,
		MaxFiles:  c.Journal.MaxFiles,
	}
}

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/platform"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if got := cfg.Priority(); got != platform.PriorityTimeCritical {
		t.Errorf("Priority() = %v, want %v", got, platform.PriorityTimeCritical)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), res.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if len(res.Files) != 0 {
		t.Errorf("Files = %v, want none", res.Files)
	}
}

func TestLoadFromPath_OverridesAndDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"log_level: debug",
		"actor:",
		"  max_attempts: 3",
		"  priority: highest",
		"listener:",
		"  interval: 750ms",
		"monitor:",
		"  interval: 1m",
		"journal:",
		"  enabled: true",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	want.LogLevel = "debug"
	want.Actor = ActorConfig{MaxAttempts: 3, Priority: "highest"}
	want.Listener.Interval = 750 * time.Millisecond
	want.Monitor.Interval = time.Minute
	want.Journal.Enabled = true
	if diff := cmp.Diff(want, res.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := res.Config.Priority(); got != platform.PriorityHighest {
		t.Errorf("Priority() = %v, want %v", got, platform.PriorityHighest)
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "unknown_key: 1\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown_key") && !strings.Contains(err.Error(), "field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error to include file path, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorHasSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log_level: debug\nlistener:\n  interval: 10ms\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T %v", err, err)
	}
	if verr.Path != "listener.interval" {
		t.Errorf("Path = %q, want %q", verr.Path, "listener.interval")
	}
	if verr.Source.Line != 3 {
		t.Errorf("Source.Line = %d, want 3", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), path+":3:") {
		t.Errorf("expected file:line prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"attempts low", func(c *Config) { c.Actor.MaxAttempts = 0 }, "actor.max_attempts"},
		{"attempts high", func(c *Config) { c.Actor.MaxAttempts = 11 }, "actor.max_attempts"},
		{"priority", func(c *Config) { c.Actor.Priority = "realtime" }, "actor.priority"},
		{"interval long", func(c *Config) { c.Listener.Interval = 2 * time.Minute }, "listener.interval"},
		{"buffer", func(c *Config) { c.Listener.EventBuffer = 0 }, "listener.event_buffer"},
		{"monitor", func(c *Config) { c.Monitor.Interval = 100 * time.Millisecond }, "monitor.interval"},
		{"journal level", func(c *Config) { c.Journal.Level = "trace" }, "journal.level"},
		{"journal size", func(c *Config) { c.Journal.MaxSizeMB = 0 }, "journal.max_size_mb"},
		{"journal files", func(c *Config) { c.Journal.MaxFiles = 0 }, "journal.max_files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) || verr.Path != tt.path {
				t.Errorf("Validate() = %v, want error at %q", err, tt.path)
			}
		})
	}
}

func TestLogLevelNames(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.LogLevel = tt.in
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(log_level=%q) = %v, want nil", tt.in, err)
		}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromPath_IncludeDirectoryOrderAndMainOverrides(t *testing.T) {
	dir := t.TempDir()

	// config.d loaded first, in sorted order.
	configD := filepath.Join(dir, "config.d")
	if err := os.MkdirAll(configD, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(configD, "10-base.yaml"), "listener:\n  event_buffer: 5\n  enabled: false\n")
	writeFile(t, filepath.Join(configD, "20-override.yaml"), "listener:\n  event_buffer: 6\n")

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include:\n  - config.d\nlistener:\n  event_buffer: 7\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Listener.EventBuffer != 7 {
		t.Errorf("event_buffer = %d, want 7", res.Config.Listener.EventBuffer)
	}
	if res.Config.Listener.Enabled {
		t.Errorf("listener.enabled = true, want false from include")
	}
	if len(res.Files) != 3 {
		t.Errorf("Files = %v, want 3 entries", res.Files)
	}

	_, src, err := Explain(res, "listener.enabled")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if src.Kind != SourceFile || filepath.Base(src.File) != "10-base.yaml" {
		t.Errorf("listener.enabled source = %+v, want 10-base.yaml", src)
	}
}

func TestLoadFromPath_IncludeMissingPathHasContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "include:\n  - missing.yaml\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "include") || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected include error, got %v", err)
	}
	if !strings.Contains(err.Error(), path+":") {
		t.Fatalf("expected error to include file:line:col prefix, got %v", err)
	}
}

func TestLoadFromPath_IncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	writeFile(t, a, "include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestExplainDefaultsAndUnknown(t *testing.T) {
	res := &LoadResult{Config: DefaultConfig()}
	val, src, err := Explain(res, "monitor.interval")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != 10*time.Second || src.Kind != SourceDefault {
		t.Errorf("Explain(monitor.interval) = %v, %+v, want 10s from defaults", val, src)
	}
	if _, _, err := Explain(res, "actor.nope"); err == nil {
		t.Errorf("Explain(actor.nope) error = nil")
	}
	paths := Paths()
	if len(paths) == 0 || paths[0] != "actor.max_attempts" {
		t.Errorf("Paths() = %v, want sorted list starting with actor.max_attempts", paths)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Listener.Interval = 2 * time.Second
	cfg.Journal.File = "/var/tmp/winvd.log"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(cfg, res.Config); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	bad := DefaultConfig()
	bad.LogLevel = ""
	if err := bad.SaveTo(path); err == nil {
		t.Errorf("SaveTo(invalid) error = nil")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)
	t.Setenv("HOME", dir)
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "config.yaml" || filepath.Base(filepath.Dir(path)) != "winvd" {
		t.Errorf("DefaultConfigPath() = %q, want .../winvd/config.yaml", path)
	}
}

func TestGetJournalConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Level = "warn"
	cfg.Journal.File = "/logs/winvd.log"
	want := journal.Config{Enabled: true, Level: journal.LevelWarn, FilePath: "/logs/winvd.log", MaxSizeMB: 10, MaxFiles: 3}
	if diff := cmp.Diff(want, cfg.GetJournalConfig()); diff != "" {
		t.Errorf("GetJournalConfig() mismatch (-want +got):\n%s", diff)
	}
	cfg.Journal.File = ""
	if got := cfg.GetJournalConfig().FilePath; filepath.Base(got) != "events.log" {
		t.Errorf("default journal path = %q, want .../events.log", got)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/config"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/ipc"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform/fakeshell"
	"github.com/1broseidon/winvd/internal/vd"
)

// startDaemon serves a fake shell on a socket and returns a config file that
// points the CLI at it.
func startDaemon(t *testing.T, n int) (*fakeshell.Shell, string) {
	t.Helper()
	sh := fakeshell.New(n)
	t.Cleanup(sh.Close)
	svc, err := vd.New(vd.Config{Connector: sh.NewConnector()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)

	dir, err := os.MkdirTemp("", "winvd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "c.sock")
	srv, err := ipc.NewServer(ipc.ServerConfig{SocketPath: socket, Desktops: svc})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("socket_path: "+socket+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return sh, cfgPath
}

func TestCommandsThroughDaemon(t *testing.T) {
	sh, cfg := startDaemon(t, 2)
	hwnd := sh.AddWindow("editor", 0)

	steps := []struct {
		cmd  string
		args []string
	}{
		{"create", []string{"--config", cfg, "build"}},
		{"switch", []string{"--config", cfg, "#2"}},
		{"rename", []string{"--config", cfg, "0", "home"}},
		{"move-window", []string{"--config", cfg, hwnd.String(), "2"}},
		{"pin", []string{"--config", cfg, "--app", hwnd.String()}},
		{"unpin", []string{"--config", cfg, "--app", hwnd.String()}},
		{"move-desktop", []string{"--config", cfg, "2", "1"}},
	}
	for _, s := range steps {
		if code := run(s.cmd, s.args); code != 0 {
			t.Fatalf("winvd %s %v = %d, want 0", s.cmd, s.args, code)
		}
	}
	if got := sh.Name(0); got != "home" {
		t.Errorf("desktop 0 name = %q, want %q", got, "home")
	}
	if got := sh.Name(1); got != "build" {
		t.Errorf("desktop 1 name = %q, want %q after move-desktop", got, "build")
	}
	if got := sh.CurrentIndex(); got != 1 {
		t.Errorf("current index = %d, want 1", got)
	}
	if got := sh.WindowIndex(hwnd); got != 1 {
		t.Errorf("window index = %d, want 1", got)
	}

	if code := run("remove", []string{"--config", cfg, "--fallback", "0", "1"}); code != 0 {
		t.Errorf("winvd remove = %d, want 0", code)
	}
	if got := len(sh.IDs()); got != 2 {
		t.Errorf("desktops after remove = %d, want 2", got)
	}
}

func TestExitCodes(t *testing.T) {
	_, cfg := startDaemon(t, 1)

	tests := []struct {
		cmd  string
		args []string
		want int
	}{
		{"bogus", nil, 2},
		{"switch", []string{"--config", cfg}, 2},
		{"switch", []string{"--config", cfg, "not-a-desktop"}, 2},
		{"switch", []string{"--config", cfg, "7"}, 1},
		{"move-window", []string{"--config", cfg, "zero", "0"}, 2},
		{"move-desktop", []string{"--config", cfg, "0", "-1"}, 2},
		{"switch", []string{"--help"}, 0},
		{"config", nil, 2},
		{"mcp", []string{"nope"}, 2},
		{"tui", []string{"--config", cfg, "extra"}, 2},
	}
	for _, tt := range tests {
		if got := run(tt.cmd, tt.args); got != tt.want {
			t.Errorf("winvd %s %v = %d, want %d", tt.cmd, tt.args, got, tt.want)
		}
	}
}

func TestParseArgCount(t *testing.T) {
	tests := []struct {
		args  []string
		nargs []int
		want  int
	}{
		{nil, []int{0}, -1},
		{[]string{"a"}, []int{0}, 2},
		{[]string{"a"}, []int{0, 1}, -1},
		{[]string{"a", "b"}, []int{0, 1}, 2},
		{[]string{"-unknown"}, nil, 2},
		{[]string{"-h"}, nil, 0},
	}
	for _, tt := range tests {
		fs := newCommand("t", nil)
		fs.SetOutput(&bytes.Buffer{})
		if got := parse(fs, tt.args, tt.nargs...); got != tt.want {
			t.Errorf("parse(%q, %v) = %d, want %d", tt.args, tt.nargs, got, tt.want)
		}
	}
}

func TestLoadDaemonConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\nlistener:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadDaemonConfig(daemonFlags{
		configPath: path,
		logLevel:   "debug",
		listen:     "false",
		interval:   5 * time.Second,
		journal:    filepath.Join(t.TempDir(), "j.log"),
	})
	if err != nil {
		t.Fatalf("loadDaemonConfig() error = %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Listener.Enabled || cfg.Monitor.Interval != 5*time.Second || !cfg.Journal.Enabled {
		t.Errorf("loadDaemonConfig() = %+v", cfg)
	}

	if _, err := loadDaemonConfig(daemonFlags{configPath: path, listen: "maybe"}); err == nil {
		t.Errorf("loadDaemonConfig(listen=maybe) error = nil")
	}
	if _, err := loadDaemonConfig(daemonFlags{configPath: path, logLevel: "loud"}); err == nil {
		t.Errorf("loadDaemonConfig(log-level=loud) error = nil")
	}
}

func TestDaemonFlagsFromEnv(t *testing.T) {
	t.Setenv("WINVD_LOG_LEVEL", "loud")
	t.Setenv("WINVD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	// An invalid level from the environment reaches validation.
	if got := runDaemon(nil); got != 1 {
		t.Errorf("runDaemon() with WINVD_LOG_LEVEL=loud = %d, want 1", got)
	}
}

func TestPrintDesktopTable(t *testing.T) {
	id := desktop.ID{Data1: 0xAABBCCDD}
	var buf bytes.Buffer
	printDesktopTable(&buf, []vd.DesktopInfo{
		{Index: 0, ID: id, Name: "home"},
		{Index: 1, ID: id, Current: true},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("table has %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "home") || strings.HasPrefix(lines[1], "*") {
		t.Errorf("row 0 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "*") {
		t.Errorf("row 1 = %q, want current marker", lines[2])
	}
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		ev   listener.Event
		want string
	}{
		{listener.Event{Kind: listener.CurrentChanged, Old: desktop.Index(0), New: desktop.Index(2), Time: at}, "03:04:05.000 switched  #0 -> #2"},
		{listener.Event{Kind: listener.NameChanged, Desktop: desktop.Index(1), Name: "mail", Time: at}, `03:04:05.000 renamed   #1 to "mail"`},
		{listener.Event{Kind: listener.Moved, Desktop: desktop.Index(1), OldIndex: 1, NewIndex: 3, Time: at}, "03:04:05.000 moved     #1 from 1 to 3"},
		{listener.Event{Kind: listener.ViewChanged, Window: 0x2A, Time: at}, "03:04:05.000 view      0x2A"},
	}
	for _, tt := range tests {
		if got := formatEvent(tt.ev); got != tt.want {
			t.Errorf("formatEvent(%s) = %q, want %q", tt.ev.Kind, got, tt.want)
		}
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		src  config.Source
		want string
	}{
		{config.Source{Kind: config.SourceDefault, Name: "defaults"}, "default:defaults"},
		{config.Source{Kind: config.SourceFile, File: "/c.yaml", Line: 3, Column: 5}, "file:/c.yaml:3:5"},
		{config.Source{Kind: config.SourceFile, File: "/c.yaml"}, "file:/c.yaml"},
	}
	for _, tt := range tests {
		if got := formatSource(tt.src); got != tt.want {
			t.Errorf("formatSource(%+v) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestNewCommandRegistersCommonFlags(t *testing.T) {
	var common commonFlags
	fs := newCommand("x", &common)
	fs.SetOutput(&bytes.Buffer{})
	if err := fs.Parse([]string{"--direct", "--config", "/tmp/c.yaml"}); err != nil {
		t.Fatal(err)
	}
	if !common.direct || common.configPath != "/tmp/c.yaml" {
		t.Errorf("common flags = %+v", common)
	}
	if fs.Lookup("direct") == nil || fs.Lookup("config") == nil {
		t.Errorf("flags not registered")
	}
}

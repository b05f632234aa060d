package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
)

func openJournal(t *testing.T, level Level) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "events.log")
	j, err := New(Config{Enabled: true, Level: level, FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	j.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }
	t.Cleanup(func() { j.Close() })
	return j, path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRecordFormat(t *testing.T) {
	j, path := openJournal(t, LevelInfo)
	j.Record(ActionRename, "#0", map[string]any{"name": "work", "attempts": 1})

	want := `2026-03-04 05:06:07 [RENAME] target=#0 attempts=1 name="work"` + "\n"
	if got := readFile(t, path); got != want {
		t.Errorf("journal = %q, want %q", got, want)
	}
}

func TestLevelFiltering(t *testing.T) {
	j, path := openJournal(t, LevelInfo)
	j.RecordEvent(listener.Event{Kind: listener.Created})
	j.Record(ActionReconnect, "", nil)
	got := readFile(t, path)
	if strings.Contains(got, "[EVENT]") {
		t.Errorf("debug entry written at info level: %q", got)
	}
	if !strings.Contains(got, "[RECONNECT]") {
		t.Errorf("warn entry missing: %q", got)
	}
}

func TestRecordEvent(t *testing.T) {
	j, path := openJournal(t, LevelDebug)
	id := desktop.MustParseID("{11111111-2222-3333-4444-555555555555}")
	j.RecordEvent(listener.Event{Kind: listener.NameChanged, Desktop: desktop.WithID(id), Name: "work"})
	got := readFile(t, path)
	want := `[EVENT] target={11111111-2222-3333-4444-555555555555} kind="NameChanged" name="work"`
	if !strings.Contains(got, want) {
		t.Errorf("journal = %q, want it to contain %q", got, want)
	}
}

func TestRotation(t *testing.T) {
	j, path := openJournal(t, LevelInfo)
	j.Record(ActionCreate, "#1", nil)
	j.currentSize = 1024 * 1024
	j.Record(ActionCreate, "#2", nil)

	if got := readFile(t, path + ".1"); !strings.Contains(got, "target=#1") {
		t.Errorf("rotated file = %q, want the first entry", got)
	}
	if got := readFile(t, path); !strings.Contains(got, "target=#2") || strings.Contains(got, "target=#1") {
		t.Errorf("current file = %q, want only the second entry", got)
	}
}

func TestDisabledAndNil(t *testing.T) {
	j, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	j.Record(ActionSwitch, "#0", nil)
	if err := j.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	var nilJournal *Journal
	nilJournal.Record(ActionSwitch, "#0", nil)
	nilJournal.RecordEvent(listener.Event{Kind: listener.Created})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

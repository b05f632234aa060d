// Package journal keeps a rotating plain-text record of desktop changes.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/winvd/internal/listener"
)

// Level defines the journal verbosity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Action is the kind of entry being recorded.
type Action string

const (
	ActionSwitch      Action = "SWITCH"
	ActionCreate      Action = "CREATE"
	ActionRemove      Action = "REMOVE"
	ActionRename      Action = "RENAME"
	ActionWallpaper   Action = "WALLPAPER"
	ActionMoveDesktop Action = "MOVE-DESKTOP"
	ActionMoveWindow  Action = "MOVE-WINDOW"
	ActionPin         Action = "PIN"
	ActionUnpin       Action = "UNPIN"
	ActionEvent       Action = "EVENT"
	ActionReconnect   Action = "RECONNECT"
)

func actionLevel(action Action) Level {
	switch action {
	case ActionEvent:
		return LevelDebug
	case ActionReconnect:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Config holds configuration for the journal.
type Config struct {
	Enabled   bool
	Level     Level
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

// Journal appends entries to a file and rotates it by size. A nil or
// disabled Journal discards everything.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	config      Config
	currentSize int64
	now         func() time.Time
}

// New opens the journal file, creating its directory as needed.
func New(cfg Config) (*Journal, error) {
	if !cfg.Enabled {
		return &Journal{config: cfg}, nil
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 3
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.FilePath, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}
	return &Journal{
		file:        f,
		config:      cfg,
		currentSize: stat.Size(),
		now:         time.Now,
	}, nil
}

// Record writes one entry. target names the desktop or window acted on and
// may be empty.
func (j *Journal) Record(action Action, target string, details map[string]any) {
	if j == nil || !j.config.Enabled {
		return
	}
	if actionLevel(action) < j.config.Level {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return
	}

	maxBytes := int64(j.config.MaxSizeMB) * 1024 * 1024
	if j.currentSize >= maxBytes {
		if err := j.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "journal rotation failed: %v\n", err)
		}
		if j.file == nil {
			return
		}
	}

	var sb strings.Builder
	sb.WriteString(j.now().Format("2006-01-02 15:04:05"))
	sb.WriteString(" [")
	sb.WriteString(string(action))
	sb.WriteString("]")
	if target != "" {
		sb.WriteString(" target=")
		sb.WriteString(target)
	}

	// Sorted so entries diff cleanly.
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := details[k].(type) {
		case string:
			fmt.Fprintf(&sb, " %s=%q", k, v)
		default:
			fmt.Fprintf(&sb, " %s=%v", k, v)
		}
	}
	sb.WriteString("\n")

	n, err := j.file.WriteString(sb.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write journal entry: %v\n", err)
		return
	}
	j.currentSize += int64(n)
}

// RecordEvent writes a shell notification.
func (j *Journal) RecordEvent(ev listener.Event) {
	details := map[string]any{"kind": string(ev.Kind)}
	target := ""
	if !ev.Desktop.IsZero() {
		target = ev.Desktop.String()
	}
	switch ev.Kind {
	case listener.Destroyed:
		details["fallback"] = ev.Fallback.String()
	case listener.CurrentChanged:
		details["old"] = ev.Old.String()
		target = ev.New.String()
	case listener.NameChanged:
		details["name"] = ev.Name
	case listener.WallpaperChanged:
		details["path"] = ev.Path
	case listener.Moved:
		details["old_index"] = ev.OldIndex
		details["new_index"] = ev.NewIndex
	case listener.ViewChanged:
		target = fmt.Sprintf("0x%X", uintptr(ev.Window))
	}
	j.Record(ActionEvent, target, details)
}

// Close closes the journal file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// rotate shifts events.log to events.log.1 and so on, keeping MaxFiles old
// files.
func (j *Journal) rotate() error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}

	base := j.config.FilePath
	for i := j.config.MaxFiles; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", base, i)
		if i == j.config.MaxFiles {
			os.Remove(oldPath)
			continue
		}
		os.Rename(oldPath, fmt.Sprintf("%s.%d", base, i+1))
	}
	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate journal: %w", err)
	}

	f, err := os.OpenFile(base, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open new journal: %w", err)
	}
	j.file = f
	j.currentSize = 0
	return nil
}

// ParseLevel converts a config string to a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

package config

import (
	"fmt"
)

// Explain returns the effective value at a dotted YAML path such as
// "listener.interval" and where it came from.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, ok := flatten(res.Config)[path]
	if !ok {
		return nil, Source{}, fmt.Errorf("unknown path: %s", path)
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

// Paths lists every path Explain accepts, sorted.
func Paths() []string {
	return sortedKeys(flatten(DefaultConfig()))
}

func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"log_level":             cfg.LogLevel,
		"socket_path":           cfg.SocketPath,
		"actor.max_attempts":    cfg.Actor.MaxAttempts,
		"actor.priority":        cfg.Actor.Priority,
		"listener.enabled":      cfg.Listener.Enabled,
		"listener.interval":     cfg.Listener.Interval,
		"listener.event_buffer": cfg.Listener.EventBuffer,
		"monitor.interval":      cfg.Monitor.Interval,
		"journal.enabled":       cfg.Journal.Enabled,
		"journal.file":          cfg.Journal.File,
		"journal.level":         cfg.Journal.Level,
		"journal.max_size_mb":   cfg.Journal.MaxSizeMB,
		"journal.max_files":     cfg.Journal.MaxFiles,
	}
}

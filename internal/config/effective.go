package config

import (
	"fmt"
	"sort"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.SocketPath != nil {
		cfg.SocketPath = *raw.SocketPath
	}
	if a := raw.Actor; a != nil {
		cfg.Actor.MaxAttempts = derefInt(a.MaxAttempts, cfg.Actor.MaxAttempts)
		if a.Priority != nil {
			cfg.Actor.Priority = *a.Priority
		}
	}
	if l := raw.Listener; l != nil {
		if l.Enabled != nil {
			cfg.Listener.Enabled = *l.Enabled
		}
		if l.Interval != nil {
			cfg.Listener.Interval = *l.Interval
		}
		cfg.Listener.EventBuffer = derefInt(l.EventBuffer, cfg.Listener.EventBuffer)
	}
	if m := raw.Monitor; m != nil && m.Interval != nil {
		cfg.Monitor.Interval = *m.Interval
	}
	if j := raw.Journal; j != nil {
		if j.Enabled != nil {
			cfg.Journal.Enabled = *j.Enabled
		}
		if j.File != nil {
			cfg.Journal.File = *j.File
		}
		if j.Level != nil {
			cfg.Journal.Level = *j.Level
		}
		cfg.Journal.MaxSizeMB = derefInt(j.MaxSizeMB, cfg.Journal.MaxSizeMB)
		cfg.Journal.MaxFiles = derefInt(j.MaxFiles, cfg.Journal.MaxFiles)
	}

	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawActorConfig struct {
	MaxAttempts *int    `yaml:"max_attempts"`
	Priority    *string `yaml:"priority"`
}

type RawListenerConfig struct {
	Enabled     *bool          `yaml:"enabled"`
	Interval    *time.Duration `yaml:"interval"`
	EventBuffer *int           `yaml:"event_buffer"`
}

type RawMonitorConfig struct {
	Interval *time.Duration `yaml:"interval"`
}

type RawJournalConfig struct {
	Enabled   *bool   `yaml:"enabled"`
	File      *string `yaml:"file"`
	Level     *string `yaml:"level"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

// RawConfig is one file's contents before defaults are applied. A nil field
// was not set by that file.
type RawConfig struct {
	Include    IncludeList        `yaml:"include"`
	LogLevel   *string            `yaml:"log_level"`
	SocketPath *string            `yaml:"socket_path"`
	Actor      *RawActorConfig    `yaml:"actor"`
	Listener   *RawListenerConfig `yaml:"listener"`
	Monitor    *RawMonitorConfig  `yaml:"monitor"`
	Journal    *RawJournalConfig  `yaml:"journal"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.SocketPath != nil {
		out.SocketPath = overlay.SocketPath
	}
	if overlay.Actor != nil {
		base := RawActorConfig{}
		if out.Actor != nil {
			base = *out.Actor
		}
		merged := mergeRawActor(base, *overlay.Actor)
		out.Actor = &merged
	}
	if overlay.Listener != nil {
		base := RawListenerConfig{}
		if out.Listener != nil {
			base = *out.Listener
		}
		merged := mergeRawListener(base, *overlay.Listener)
		out.Listener = &merged
	}
	if overlay.Monitor != nil {
		base := RawMonitorConfig{}
		if out.Monitor != nil {
			base = *out.Monitor
		}
		if overlay.Monitor.Interval != nil {
			base.Interval = overlay.Monitor.Interval
		}
		out.Monitor = &base
	}
	if overlay.Journal != nil {
		base := RawJournalConfig{}
		if out.Journal != nil {
			base = *out.Journal
		}
		merged := mergeRawJournal(base, *overlay.Journal)
		out.Journal = &merged
	}

	return out
}

func mergeRawActor(base RawActorConfig, overlay RawActorConfig) RawActorConfig {
	out := base
	if overlay.MaxAttempts != nil {
		out.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.Priority != nil {
		out.Priority = overlay.Priority
	}
	return out
}

func mergeRawListener(base RawListenerConfig, overlay RawListenerConfig) RawListenerConfig {
	out := base
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.Interval != nil {
		out.Interval = overlay.Interval
	}
	if overlay.EventBuffer != nil {
		out.EventBuffer = overlay.EventBuffer
	}
	return out
}

func mergeRawJournal(base RawJournalConfig, overlay RawJournalConfig) RawJournalConfig {
	out := base
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.File != nil {
		out.File = overlay.File
	}
	if overlay.Level != nil {
		out.Level = overlay.Level
	}
	if overlay.MaxSizeMB != nil {
		out.MaxSizeMB = overlay.MaxSizeMB
	}
	if overlay.MaxFiles != nil {
		out.MaxFiles = overlay.MaxFiles
	}
	return out
}

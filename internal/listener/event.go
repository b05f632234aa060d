package listener

import (
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
)

// Kind names a desktop event.
type Kind string

const (
	Created          Kind = "Created"
	Destroyed        Kind = "Destroyed"
	CurrentChanged   Kind = "CurrentChanged"
	NameChanged      Kind = "NameChanged"
	WallpaperChanged Kind = "WallpaperChanged"
	Moved            Kind = "Moved"
	ViewChanged      Kind = "ViewChanged"
)

// Event is one shell notification. Desktops are identified by ID, resolved
// while the callback ran.
type Event struct {
	Kind     Kind          `json:"kind"`
	Desktop  desktop.Ref   `json:"desktop,omitzero"`
	Fallback desktop.Ref   `json:"fallback,omitzero"`
	Old      desktop.Ref   `json:"old,omitzero"`
	New      desktop.Ref   `json:"new,omitzero"`
	Name     string        `json:"name,omitempty"`
	Path     string        `json:"path,omitempty"`
	OldIndex int64         `json:"old_index,omitempty"`
	NewIndex int64         `json:"new_index,omitempty"`
	Window   platform.HWND `json:"window,omitempty"`
	Time     time.Time     `json:"time"`
}

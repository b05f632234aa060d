package mcp

// Outputs use plain strings for desktops and windows so the inferred schemas
// match what goes on the wire.

// ListDesktopsInput is the input for the list_desktops tool.
type ListDesktopsInput struct{}

// ListDesktopsOutput is the output for the list_desktops tool.
type ListDesktopsOutput struct {
	Desktops []DesktopOutput `json:"desktops"`
}

// CurrentDesktopInput is the input for the current_desktop tool.
type CurrentDesktopInput struct{}

// DesktopOutput describes one desktop.
type DesktopOutput struct {
	Index   uint32 `json:"index"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// SwitchDesktopInput is the input for the switch_desktop tool.
type SwitchDesktopInput struct {
	Desktop string `json:"desktop" jsonschema:"required,Desktop index (e.g. 2 or #2) or GUID"`
}

// CreateDesktopInput is the input for the create_desktop tool.
type CreateDesktopInput struct {
	Name string `json:"name,omitempty" jsonschema:"Optional name for the new desktop"`
}

// RemoveDesktopInput is the input for the remove_desktop tool.
type RemoveDesktopInput struct {
	Desktop  string `json:"desktop" jsonschema:"required,Desktop index or GUID to remove"`
	Fallback string `json:"fallback,omitempty" jsonschema:"Desktop that receives the removed desktop's windows (default: a neighbour)"`
}

// RenameDesktopInput is the input for the rename_desktop tool.
type RenameDesktopInput struct {
	Desktop string `json:"desktop" jsonschema:"required,Desktop index or GUID"`
	Name    string `json:"name" jsonschema:"required,New name; empty restores the default label"`
}

// MoveWindowInput is the input for the move_window tool.
type MoveWindowInput struct {
	Window  string `json:"window" jsonschema:"required,Window handle, decimal or 0x-prefixed hex"`
	Desktop string `json:"desktop" jsonschema:"required,Target desktop index or GUID"`
}

// PinWindowInput is the input for the pin_window tool.
type PinWindowInput struct {
	Window string `json:"window" jsonschema:"required,Window handle, decimal or 0x-prefixed hex"`
	App    bool   `json:"app,omitempty" jsonschema:"Pin every window of the window's application instead of just this one"`
	Unpin  bool   `json:"unpin,omitempty" jsonschema:"Remove the pin instead of adding it"`
}

// RecentEventsInput is the input for the recent_events tool.
type RecentEventsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of events, newest last (default: 20)"`
}

// RecentEventsOutput is the output for the recent_events tool.
type RecentEventsOutput struct {
	Events []EventOutput `json:"events"`
}

// EventOutput is one desktop notification.
type EventOutput struct {
	Time     string `json:"time"`
	Kind     string `json:"kind"`
	Desktop  string `json:"desktop,omitempty"`
	Fallback string `json:"fallback,omitempty"`
	Old      string `json:"old,omitempty"`
	New      string `json:"new,omitempty"`
	Name     string `json:"name,omitempty"`
	Path     string `json:"path,omitempty"`
	OldIndex int64  `json:"old_index,omitempty"`
	NewIndex int64  `json:"new_index,omitempty"`
	Window   string `json:"window,omitempty"`
}

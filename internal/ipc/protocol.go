package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/1broseidon/winvd/internal/actor"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vd"
	"github.com/1broseidon/winvd/internal/vderr"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus       CommandType = "GET_STATUS"
	CommandListDesktops    CommandType = "LIST_DESKTOPS"
	CommandGetCurrent      CommandType = "GET_CURRENT"
	CommandGetCount        CommandType = "GET_COUNT"
	CommandSwitch          CommandType = "SWITCH"
	CommandCreate          CommandType = "CREATE"
	CommandRemove          CommandType = "REMOVE"
	CommandRename          CommandType = "RENAME"
	CommandSetWallpaper    CommandType = "SET_WALLPAPER"
	CommandSetWallpaperAll CommandType = "SET_WALLPAPER_ALL"
	CommandMoveDesktop     CommandType = "MOVE_DESKTOP"
	CommandMoveWindow      CommandType = "MOVE_WINDOW"
	CommandWindowDesktop   CommandType = "WINDOW_DESKTOP"
	CommandPinWindow       CommandType = "PIN_WINDOW"
	CommandUnpinWindow     CommandType = "UNPIN_WINDOW"
	CommandPinApp          CommandType = "PIN_APP"
	CommandUnpinApp        CommandType = "UNPIN_APP"
	CommandIsPinned        CommandType = "IS_PINNED"
	CommandRecentEvents    CommandType = "RECENT_EVENTS"
	CommandSubscribe       CommandType = "SUBSCRIBE"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request represents an IPC request from client to server
type Request struct {
	ID      string          `json:"id,omitempty"`
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client. Kind, Op and
// Code describe a classified desktop error so the client can rebuild it.
type Response struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Op     string          `json:"op,omitempty"`
	Code   int32           `json:"code,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Connected     bool        `json:"connected"`
	Count         uint32      `json:"count"`
	Current       desktop.Ref `json:"current"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	DaemonRunning bool        `json:"daemon_running"`
	Listener      string      `json:"listener,omitempty"`
	Registrations int64       `json:"registrations,omitempty"`
	Delivered     int64       `json:"events_delivered,omitempty"`
	Dropped       int64       `json:"events_dropped,omitempty"`
	Subscribers   int         `json:"subscribers"`
	LastProbe     time.Time   `json:"last_probe,omitzero"`
	Actor         actor.Stats `json:"actor"`
}

type DesktopsData struct {
	Desktops []vd.DesktopInfo `json:"desktops"`
}

type CountData struct {
	Count uint32 `json:"count"`
}

type DesktopData struct {
	Desktop desktop.Ref `json:"desktop"`
}

type DesktopPayload struct {
	Desktop desktop.Ref `json:"desktop"`
}

type RemovePayload struct {
	Desktop  desktop.Ref `json:"desktop"`
	Fallback desktop.Ref `json:"fallback,omitzero"`
}

type RenamePayload struct {
	Desktop desktop.Ref `json:"desktop"`
	Name    string      `json:"name"`
}

type WallpaperPayload struct {
	Desktop desktop.Ref `json:"desktop,omitzero"`
	Path    string      `json:"path"`
}

type MoveDesktopPayload struct {
	Desktop desktop.Ref `json:"desktop"`
	Index   uint32      `json:"index"`
}

type WindowPayload struct {
	Window platform.HWND `json:"window"`
	App    bool          `json:"app,omitempty"`
}

type MoveWindowPayload struct {
	Window  platform.HWND `json:"window"`
	Desktop desktop.Ref   `json:"desktop"`
}

type WindowDesktopData struct {
	Window  platform.HWND `json:"window"`
	Desktop desktop.Ref   `json:"desktop"`
}

type PinnedData struct {
	Window platform.HWND `json:"window"`
	App    bool          `json:"app,omitempty"`
	Pinned bool          `json:"pinned"`
}

type RecentEventsPayload struct {
	Limit int `json:"limit,omitempty"`
}

type EventsData struct {
	Events []listener.Event `json:"events"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data any) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ErrorResponse describes err, keeping the classification of a desktop error.
func ErrorResponse(err error) *Response {
	resp := NewErrorResponse(err.Error())
	var verr *vderr.Error
	if errors.As(err, &verr) {
		resp.Kind = verr.Kind.String()
		resp.Op = verr.Op
		resp.Code = int32(verr.Code)
	}
	return resp
}

// Err returns the error an ERROR response describes, nil for OK. A
// classified error keeps its kind, so errors.Is works against vderr kinds.
func (r *Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	if kind, ok := vderr.ParseKind(r.Kind); ok {
		return &remoteError{
			msg: r.Error,
			err: &vderr.Error{Op: r.Op, Kind: kind, Code: vderr.HRESULT(r.Code)},
		}
	}
	return fmt.Errorf("daemon error: %s", r.Error)
}

// remoteError carries the daemon's message with the rebuilt classification.
type remoteError struct {
	msg string
	err *vderr.Error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

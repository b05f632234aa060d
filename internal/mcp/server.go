// Package mcp exposes virtual desktop operations as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"io"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/ipc"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vd"
)

const (
	ServerName    = "winvd"
	ServerVersion = "0.1.0"
)

// Backend is the desktop API the tools call. Both *ipc.Client (through the
// daemon) and *vd.Service (in-process) implement it.
type Backend interface {
	Describe() ([]vd.DesktopInfo, error)
	Current() (desktop.Ref, error)
	Switch(ref desktop.Ref) error
	Create() (desktop.Ref, error)
	Remove(ref, fallback desktop.Ref) error
	SetName(ref desktop.Ref, name string) error
	MoveWindow(hwnd platform.HWND, ref desktop.Ref) error
	PinWindow(hwnd platform.HWND) error
	UnpinWindow(hwnd platform.HWND) error
	PinApp(hwnd platform.HWND) error
	UnpinApp(hwnd platform.HWND) error
}

// EventHistory is implemented by backends that keep recent notifications.
type EventHistory interface {
	RecentEvents(limit int) ([]listener.Event, error)
}

var (
	_ Backend      = (*vd.Service)(nil)
	_ Backend      = (*ipc.Client)(nil)
	_ EventHistory = (*ipc.Client)(nil)
)

// Server is the MCP server for desktop control.
type Server struct {
	mcpServer *mcpsdk.Server
	backend   Backend
	logger    *slog.Logger
}

// NewServer creates a server whose tools call b.
func NewServer(b Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{backend: b, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_desktops",
		Description: "List every virtual desktop with its index, GUID, name and whether it is the current one.",
	}, s.handleListDesktops)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "current_desktop",
		Description: "Return the desktop that is currently shown.",
	}, s.handleCurrentDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "switch_desktop",
		Description: "Switch to a desktop given by zero-based index or GUID.",
	}, s.handleSwitchDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "create_desktop",
		Description: "Create a new desktop at the end of the list, optionally naming it. Does not switch to it.",
	}, s.handleCreateDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "remove_desktop",
		Description: "Remove a desktop. Its windows move to the fallback desktop, or to a neighbour when no fallback is given.",
	}, s.handleRemoveDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "rename_desktop",
		Description: "Set the display name of a desktop.",
	}, s.handleRenameDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "move_window",
		Description: "Move a top-level window to another desktop.",
	}, s.handleMoveWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "pin_window",
		Description: "Pin a window, or its whole application, so it shows on every desktop. Set unpin to remove the pin.",
	}, s.handlePinWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "recent_events",
		Description: "Return recent desktop notifications (created, destroyed, switched, renamed, wallpaper, moved). Requires the daemon.",
	}, s.handleRecentEvents)
}

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/runtimepath"
	"github.com/1broseidon/winvd/internal/vd"
)

// Desktops is the desktop API the server exposes. *vd.Service implements it.
type Desktops interface {
	Describe() ([]vd.DesktopInfo, error)
	Count() (uint32, error)
	Current() (desktop.Ref, error)
	Connected() bool
	Switch(ref desktop.Ref) error
	Create() (desktop.Ref, error)
	Remove(ref, fallback desktop.Ref) error
	SetName(ref desktop.Ref, name string) error
	SetWallpaper(ref desktop.Ref, path string) error
	SetWallpaperForAll(path string) error
	MoveDesktop(ref desktop.Ref, index uint32) error
	MoveWindow(hwnd platform.HWND, ref desktop.Ref) error
	WindowDesktop(hwnd platform.HWND) (desktop.Ref, error)
	Resolve(ref desktop.Ref) (desktop.Ref, error)
	PinWindow(hwnd platform.HWND) error
	UnpinWindow(hwnd platform.HWND) error
	PinApp(hwnd platform.HWND) error
	UnpinApp(hwnd platform.HWND) error
	IsWindowPinned(hwnd platform.HWND) (bool, error)
	IsAppPinned(hwnd platform.HWND) (bool, error)
}

var _ Desktops = (*vd.Service)(nil)

// Events supplies event history and live subscriptions.
type Events interface {
	Recent(limit int) []listener.Event
	Subscribe() (<-chan listener.Event, func())
}

// ServerConfig holds configuration for a Server.
type ServerConfig struct {
	// SocketPath defaults to runtimepath.SocketPath().
	SocketPath string
	Desktops   Desktops
	// Events may be nil; RECENT_EVENTS and SUBSCRIBE then fail.
	Events Events
	// Status, when set, adds daemon fields to GET_STATUS.
	Status func(*StatusData)
	Logger *slog.Logger
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	listener   net.Listener
	desktops   Desktops
	events     Events
	status     func(*StatusData)
	logger     *slog.Logger
	startTime  time.Time

	mu           sync.Mutex
	conns        map[net.Conn]struct{}
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Desktops == nil {
		return nil, fmt.Errorf("ipc: no desktop service")
	}
	socketPath := cfg.SocketPath
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		desktops:   cfg.Desktops,
		events:     cfg.Events,
		status:     cfg.Status,
		logger:     logger,
		startTime:  time.Now(),
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = ln

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Serve starts the server and stops it when ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping() {
				return
			}
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.write(conn, NewErrorResponse(fmt.Sprintf("invalid request: %v", err)))
		return
	}

	if req.Command == CommandSubscribe {
		s.handleSubscribe(conn, reader, req)
		return
	}

	resp := s.handleCommand(req)
	resp.ID = req.ID
	s.write(conn, resp)
}

func (s *Server) write(conn net.Conn, resp *Response) bool {
	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal response", "error", err)
		return false
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Debug("failed to send response", "error", err)
		return false
	}
	return true
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	s.logger.Debug("IPC request", "command", string(req.Command), "id", req.ID)
	switch req.Command {
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandListDesktops:
		return s.handleListDesktops()
	case CommandGetCurrent:
		ref, err := s.desktops.Current()
		return respond(DesktopData{Desktop: ref}, err)
	case CommandGetCount:
		n, err := s.desktops.Count()
		return respond(CountData{Count: n}, err)
	case CommandSwitch:
		return withPayload(req.Payload, func(p DesktopPayload) *Response {
			return done(s.desktops.Switch(p.Desktop))
		})
	case CommandCreate:
		ref, err := s.desktops.Create()
		return respond(DesktopData{Desktop: ref}, err)
	case CommandRemove:
		return withPayload(req.Payload, func(p RemovePayload) *Response {
			return done(s.desktops.Remove(p.Desktop, p.Fallback))
		})
	case CommandRename:
		return withPayload(req.Payload, func(p RenamePayload) *Response {
			return done(s.desktops.SetName(p.Desktop, p.Name))
		})
	case CommandSetWallpaper:
		return withPayload(req.Payload, func(p WallpaperPayload) *Response {
			return done(s.desktops.SetWallpaper(p.Desktop, p.Path))
		})
	case CommandSetWallpaperAll:
		return withPayload(req.Payload, func(p WallpaperPayload) *Response {
			return done(s.desktops.SetWallpaperForAll(p.Path))
		})
	case CommandMoveDesktop:
		return withPayload(req.Payload, func(p MoveDesktopPayload) *Response {
			return done(s.desktops.MoveDesktop(p.Desktop, p.Index))
		})
	case CommandMoveWindow:
		return withPayload(req.Payload, func(p MoveWindowPayload) *Response {
			return done(s.desktops.MoveWindow(p.Window, p.Desktop))
		})
	case CommandWindowDesktop:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			ref, err := s.desktops.WindowDesktop(p.Window)
			if err == nil {
				ref, err = s.desktops.Resolve(ref)
			}
			return respond(WindowDesktopData{Window: p.Window, Desktop: ref}, err)
		})
	case CommandPinWindow:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			return done(s.desktops.PinWindow(p.Window))
		})
	case CommandUnpinWindow:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			return done(s.desktops.UnpinWindow(p.Window))
		})
	case CommandPinApp:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			return done(s.desktops.PinApp(p.Window))
		})
	case CommandUnpinApp:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			return done(s.desktops.UnpinApp(p.Window))
		})
	case CommandIsPinned:
		return withPayload(req.Payload, func(p WindowPayload) *Response {
			check := s.desktops.IsWindowPinned
			if p.App {
				check = s.desktops.IsAppPinned
			}
			pinned, err := check(p.Window)
			return respond(PinnedData{Window: p.Window, App: p.App, Pinned: pinned}, err)
		})
	case CommandRecentEvents:
		return s.handleRecentEvents(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func respond[T any](data T, err error) *Response {
	if err != nil {
		return ErrorResponse(err)
	}
	resp, err := NewOKResponse(data)
	if err != nil {
		return ErrorResponse(err)
	}
	return resp
}

func done(err error) *Response {
	if err != nil {
		return ErrorResponse(err)
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func withPayload[P any](raw json.RawMessage, fn func(P) *Response) *Response {
	var p P
	if len(raw) == 0 {
		return NewErrorResponse("missing payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("invalid payload: %v", err))
	}
	return fn(p)
}

// handleGetStatus returns current daemon status
func (s *Server) handleGetStatus() *Response {
	status := StatusData{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
		Connected:     s.desktops.Connected(),
	}
	if status.Connected {
		if n, err := s.desktops.Count(); err == nil {
			status.Count = n
		}
		if cur, err := s.desktops.Current(); err == nil {
			status.Current = cur
		}
	}
	if s.status != nil {
		s.status(&status)
	}
	resp, _ := NewOKResponse(status)
	return resp
}

func (s *Server) handleListDesktops() *Response {
	infos, err := s.desktops.Describe()
	return respond(DesktopsData{Desktops: infos}, err)
}

func (s *Server) handleRecentEvents(payload json.RawMessage) *Response {
	if s.events == nil {
		return NewErrorResponse("event history is not available")
	}
	var p RecentEventsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return NewErrorResponse(fmt.Sprintf("invalid payload: %v", err))
		}
	}
	events := s.events.Recent(p.Limit)
	if events == nil {
		events = []listener.Event{}
	}
	resp, _ := NewOKResponse(EventsData{Events: events})
	return resp
}

// handleSubscribe acknowledges the request, then streams one event per line
// until the client hangs up or the server stops.
func (s *Server) handleSubscribe(conn net.Conn, reader *bufio.Reader, req *Request) {
	if s.events == nil {
		resp := NewErrorResponse("event stream is not available")
		resp.ID = req.ID
		s.write(conn, resp)
		return
	}
	ch, cancel := s.events.Subscribe()
	defer cancel()

	ack, _ := NewOKResponse(nil)
	ack.ID = req.ID
	if !s.write(conn, ack) {
		return
	}

	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		io.Copy(io.Discard, reader)
	}()

	enc := json.NewEncoder(conn)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.logger.Debug("subscriber write failed", "error", err)
				return
			}
		case <-hangup:
			return
		}
	}
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("failed to remove socket", "error", err)
	}
}

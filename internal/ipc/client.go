package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/runtimepath"
	"github.com/1broseidon/winvd/internal/vd"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the default socket.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientWithSocket(socketPath)
}

// NewClientWithSocket creates a client for socketPath.
func NewClientWithSocket(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	return conn, nil
}

func newRequest(cmd CommandType, payload any) (*Request, error) {
	req := &Request{ID: uuid.NewString(), Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}
	return req, nil
}

func writeRequest(conn net.Conn, req *Request) error {
	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func readResponse(reader *bufio.Reader, req *Request) (*Response, error) {
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.ID != "" && resp.ID != req.ID {
		return nil, fmt.Errorf("response id %s does not match request %s", resp.ID, req.ID)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(cmd CommandType, payload any) (*Response, error) {
	req, err := newRequest(cmd, payload)
	if err != nil {
		return nil, err
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(conn), req)
}

func call[T any](c *Client, cmd CommandType, payload any) (T, error) {
	var out T
	resp, err := c.sendRequest(cmd, payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return out, nil
}

func (c *Client) exec(cmd CommandType, payload any) error {
	_, err := c.sendRequest(cmd, payload)
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	status, err := call[StatusData](c, CommandGetStatus, nil)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}

func (c *Client) Describe() ([]vd.DesktopInfo, error) {
	data, err := call[DesktopsData](c, CommandListDesktops, nil)
	return data.Desktops, err
}

func (c *Client) Current() (desktop.Ref, error) {
	data, err := call[DesktopData](c, CommandGetCurrent, nil)
	return data.Desktop, err
}

func (c *Client) Count() (uint32, error) {
	data, err := call[CountData](c, CommandGetCount, nil)
	return data.Count, err
}

func (c *Client) Switch(ref desktop.Ref) error {
	return c.exec(CommandSwitch, DesktopPayload{Desktop: ref})
}

func (c *Client) Create() (desktop.Ref, error) {
	data, err := call[DesktopData](c, CommandCreate, nil)
	return data.Desktop, err
}

func (c *Client) Remove(ref, fallback desktop.Ref) error {
	return c.exec(CommandRemove, RemovePayload{Desktop: ref, Fallback: fallback})
}

func (c *Client) SetName(ref desktop.Ref, name string) error {
	return c.exec(CommandRename, RenamePayload{Desktop: ref, Name: name})
}

func (c *Client) SetWallpaper(ref desktop.Ref, path string) error {
	return c.exec(CommandSetWallpaper, WallpaperPayload{Desktop: ref, Path: path})
}

func (c *Client) SetWallpaperForAll(path string) error {
	return c.exec(CommandSetWallpaperAll, WallpaperPayload{Path: path})
}

func (c *Client) MoveDesktop(ref desktop.Ref, index uint32) error {
	return c.exec(CommandMoveDesktop, MoveDesktopPayload{Desktop: ref, Index: index})
}

func (c *Client) MoveWindow(hwnd platform.HWND, ref desktop.Ref) error {
	return c.exec(CommandMoveWindow, MoveWindowPayload{Window: hwnd, Desktop: ref})
}

func (c *Client) WindowDesktop(hwnd platform.HWND) (desktop.Ref, error) {
	data, err := call[WindowDesktopData](c, CommandWindowDesktop, WindowPayload{Window: hwnd})
	return data.Desktop, err
}

func (c *Client) PinWindow(hwnd platform.HWND) error {
	return c.exec(CommandPinWindow, WindowPayload{Window: hwnd})
}

func (c *Client) UnpinWindow(hwnd platform.HWND) error {
	return c.exec(CommandUnpinWindow, WindowPayload{Window: hwnd})
}

func (c *Client) PinApp(hwnd platform.HWND) error {
	return c.exec(CommandPinApp, WindowPayload{Window: hwnd, App: true})
}

func (c *Client) UnpinApp(hwnd platform.HWND) error {
	return c.exec(CommandUnpinApp, WindowPayload{Window: hwnd, App: true})
}

// IsPinned reports whether hwnd, or its app when app is set, is pinned.
func (c *Client) IsPinned(hwnd platform.HWND, app bool) (bool, error) {
	data, err := call[PinnedData](c, CommandIsPinned, WindowPayload{Window: hwnd, App: app})
	return data.Pinned, err
}

// RecentEvents returns up to limit of the daemon's most recent events,
// oldest first. A limit of zero returns everything it holds.
func (c *Client) RecentEvents(limit int) ([]listener.Event, error) {
	data, err := call[EventsData](c, CommandRecentEvents, RecentEventsPayload{Limit: limit})
	return data.Events, err
}

// Subscribe streams events to fn until ctx is done or the daemon closes the
// connection.
func (c *Client) Subscribe(ctx context.Context, fn func(listener.Event)) error {
	req, err := newRequest(CommandSubscribe, nil)
	if err != nil {
		return err
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))
	if err := writeRequest(conn, req); err != nil {
		return err
	}
	reader := bufio.NewReader(conn)
	if _, err := readResponse(reader, req); err != nil {
		return err
	}
	conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	dec := json.NewDecoder(reader)
	for {
		var ev listener.Event
		if err := dec.Decode(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		fn(ev)
	}
}

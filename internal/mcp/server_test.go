package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform/fakeshell"
	"github.com/1broseidon/winvd/internal/vd"
	"github.com/1broseidon/winvd/internal/vderr"
)

func newTestServer(t *testing.T, n int) (*Server, *vd.Service, *fakeshell.Shell) {
	t.Helper()
	sh := fakeshell.New(n)
	t.Cleanup(sh.Close)
	svc, err := vd.New(vd.Config{Connector: sh.NewConnector()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return NewServer(svc, nil), svc, sh
}

func resultText(r *mcpsdk.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	if tc, ok := r.Content[0].(*mcpsdk.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestListAndCurrentDesktop(t *testing.T) {
	s, svc, sh := newTestServer(t, 3)
	ctx := context.Background()
	if err := svc.SetNameAt(1, "mail"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.handleSwitchDesktop(ctx, nil, SwitchDesktopInput{Desktop: "#1"}); err != nil {
		t.Fatalf("switch_desktop error = %v", err)
	}
	_, list, err := s.handleListDesktops(ctx, nil, ListDesktopsInput{})
	if err != nil {
		t.Fatalf("list_desktops error = %v", err)
	}
	ids := sh.IDs()
	want := []DesktopOutput{
		{Index: 0, ID: ids[0].String()},
		{Index: 1, ID: ids[1].String(), Name: "mail", Current: true},
		{Index: 2, ID: ids[2].String()},
	}
	if diff := cmp.Diff(want, list.Desktops); diff != "" {
		t.Errorf("list_desktops mismatch (-want +got):\n%s", diff)
	}

	_, cur, err := s.handleCurrentDesktop(ctx, nil, CurrentDesktopInput{})
	if err != nil {
		t.Fatal(err)
	}
	if cur.Index != 1 || cur.Name != "mail" {
		t.Errorf("current_desktop = %+v, want #1 mail", cur)
	}
}

func TestCreateRenameRemove(t *testing.T) {
	s, _, sh := newTestServer(t, 2)
	ctx := context.Background()

	_, created, err := s.handleCreateDesktop(ctx, nil, CreateDesktopInput{Name: "scratch"})
	if err != nil {
		t.Fatalf("create_desktop error = %v", err)
	}
	if created.Index != 2 || sh.Name(2) != "scratch" {
		t.Errorf("create_desktop = %+v, shell name %q", created, sh.Name(2))
	}

	res, _, err := s.handleRenameDesktop(ctx, nil, RenameDesktopInput{Desktop: "2", Name: "notes"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(res); !strings.Contains(got, `"notes"`) {
		t.Errorf("rename_desktop text = %q", got)
	}

	if _, _, err := s.handleRemoveDesktop(ctx, nil, RemoveDesktopInput{Desktop: "2", Fallback: "0"}); err != nil {
		t.Fatalf("remove_desktop error = %v", err)
	}
	if got := len(sh.IDs()); got != 2 {
		t.Errorf("desktops after remove = %d, want 2", got)
	}
}

func TestWindowTools(t *testing.T) {
	s, svc, sh := newTestServer(t, 2)
	ctx := context.Background()
	hwnd := sh.AddWindow("editor", 0)

	if _, _, err := s.handleMoveWindow(ctx, nil, MoveWindowInput{Window: hwnd.String(), Desktop: "1"}); err != nil {
		t.Fatalf("move_window error = %v", err)
	}
	if got := sh.WindowIndex(hwnd); got != 1 {
		t.Errorf("window desktop = %d, want 1", got)
	}

	if _, _, err := s.handlePinWindow(ctx, nil, PinWindowInput{Window: hwnd.String(), App: true}); err != nil {
		t.Fatal(err)
	}
	if pinned, _ := svc.IsAppPinned(hwnd); !pinned {
		t.Errorf("app not pinned after pin_window app=true")
	}
	if _, _, err := s.handlePinWindow(ctx, nil, PinWindowInput{Window: hwnd.String(), App: true, Unpin: true}); err != nil {
		t.Fatal(err)
	}
	if pinned, _ := svc.IsAppPinned(hwnd); pinned {
		t.Errorf("app still pinned after unpin")
	}
}

func TestToolErrors(t *testing.T) {
	s, _, _ := newTestServer(t, 1)
	ctx := context.Background()

	if _, _, err := s.handleSwitchDesktop(ctx, nil, SwitchDesktopInput{Desktop: "nope"}); err == nil {
		t.Errorf("switch_desktop(nope) error = nil")
	}
	if _, _, err := s.handleSwitchDesktop(ctx, nil, SwitchDesktopInput{Desktop: "5"}); !errors.Is(err, vderr.DesktopNotFound) {
		t.Errorf("switch_desktop(5) error = %v, want DesktopNotFound", err)
	}
	if _, _, err := s.handleMoveWindow(ctx, nil, MoveWindowInput{Window: "0", Desktop: "0"}); err == nil {
		t.Errorf("move_window(0) error = nil")
	}
	if _, _, err := s.handleRecentEvents(ctx, nil, RecentEventsInput{}); err == nil {
		t.Errorf("recent_events without history error = nil")
	}
}

type historyBackend struct {
	*vd.Service
	events []listener.Event
	limit  int
}

func (h *historyBackend) RecentEvents(limit int) ([]listener.Event, error) {
	h.limit = limit
	return h.events, nil
}

func TestRecentEvents(t *testing.T) {
	_, svc, _ := newTestServer(t, 1)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := &historyBackend{Service: svc, events: []listener.Event{
		{Kind: listener.CurrentChanged, Old: desktop.Index(0), New: desktop.Index(1), Time: at},
		{Kind: listener.ViewChanged, Window: 0x42, Time: at},
	}}
	s := NewServer(b, nil)

	_, out, err := s.handleRecentEvents(context.Background(), nil, RecentEventsInput{})
	if err != nil {
		t.Fatal(err)
	}
	if b.limit != defaultEventLimit {
		t.Errorf("limit passed = %d, want %d", b.limit, defaultEventLimit)
	}
	want := []EventOutput{
		{Time: "2024-05-01T12:00:00Z", Kind: "CurrentChanged", Old: "#0", New: "#1"},
		{Time: "2024-05-01T12:00:00Z", Kind: "ViewChanged", Window: "0x42"},
	}
	if diff := cmp.Diff(want, out.Events); diff != "" {
		t.Errorf("recent_events mismatch (-want +got):\n%s", diff)
	}
}

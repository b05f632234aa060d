package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform/fakeshell"
	"github.com/1broseidon/winvd/internal/vd"
	"github.com/1broseidon/winvd/internal/vderr"
)

type fakeEvents struct {
	mu     sync.Mutex
	recent []listener.Event
	subs   []chan listener.Event
}

func (f *fakeEvents) Recent(limit int) []listener.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.recent) {
		limit = len(f.recent)
	}
	return append([]listener.Event(nil), f.recent[len(f.recent)-limit:]...)
}

func (f *fakeEvents) Subscribe() (<-chan listener.Event, func()) {
	ch := make(chan listener.Event, 4)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeEvents) publish(ev listener.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

func (f *fakeEvents) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func startServer(t *testing.T, n int) (*Client, *fakeshell.Shell, *fakeEvents) {
	t.Helper()
	sh := fakeshell.New(n)
	t.Cleanup(sh.Close)
	svc, err := vd.New(vd.Config{Connector: sh.NewConnector()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)

	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "winvd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	events := &fakeEvents{}
	srv, err := NewServer(ServerConfig{
		SocketPath: filepath.Join(dir, "s.sock"),
		Desktops:   svc,
		Events:     events,
		Status:     func(st *StatusData) { st.Listener = "registered" },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)
	return NewClientWithSocket(srv.SocketPath()), sh, events
}

func TestStatusAndListing(t *testing.T) {
	c, sh, _ := startServer(t, 3)

	st, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !st.Connected || !st.DaemonRunning || st.Count != 3 || st.Listener != "registered" {
		t.Errorf("GetStatus() = %+v", st)
	}
	if i, _ := st.Current.Index(); i != 0 {
		t.Errorf("status current index = %d, want 0", i)
	}

	infos, err := c.Describe()
	if err != nil {
		t.Fatal(err)
	}
	ids := sh.IDs()
	if len(infos) != 3 || infos[2].ID != ids[2] || !infos[0].Current {
		t.Errorf("Describe() = %+v", infos)
	}
	if n, err := c.Count(); err != nil || n != 3 {
		t.Errorf("Count() = %d, %v, want 3", n, err)
	}
}

func TestMutations(t *testing.T) {
	c, sh, _ := startServer(t, 2)

	ref, err := c.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if i, ok := ref.Index(); !ok || i != 2 {
		t.Errorf("Create() = %v, want #2", ref)
	}
	if err := c.Switch(desktop.Index(2)); err != nil {
		t.Fatal(err)
	}
	cur, err := c.Current()
	if err != nil {
		t.Fatal(err)
	}
	if !cur.SameAs(ref) {
		t.Errorf("Current() = %v, want %v", cur, ref)
	}
	if err := c.SetName(ref, "ops"); err != nil {
		t.Fatal(err)
	}
	if got := sh.Name(2); got != "ops" {
		t.Errorf("shell name = %q, want %q", got, "ops")
	}
	if err := c.MoveDesktop(ref, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWallpaperForAll(`C:\wall.png`); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(desktop.Index(0), desktop.Ref{}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n, _ := c.Count(); n != 2 {
		t.Errorf("Count() after remove = %d, want 2", n)
	}
}

func TestWindowCommands(t *testing.T) {
	c, sh, _ := startServer(t, 2)
	hwnd := sh.AddWindow("term", 0)

	if err := c.MoveWindow(hwnd, desktop.Index(1)); err != nil {
		t.Fatal(err)
	}
	ref, err := c.WindowDesktop(hwnd)
	if err != nil {
		t.Fatal(err)
	}
	if i, ok := ref.Index(); !ok || i != 1 {
		t.Errorf("WindowDesktop() = %v, want resolved #1", ref)
	}
	if err := c.PinApp(hwnd); err != nil {
		t.Fatal(err)
	}
	if pinned, err := c.IsPinned(hwnd, true); err != nil || !pinned {
		t.Errorf("IsPinned(app) = %v, %v, want true", pinned, err)
	}
	if pinned, err := c.IsPinned(hwnd, false); err != nil || pinned {
		t.Errorf("IsPinned(window) = %v, %v, want false", pinned, err)
	}
	if err := c.UnpinApp(hwnd); err != nil {
		t.Fatal(err)
	}
}

func TestErrorKindSurvivesTransport(t *testing.T) {
	c, _, _ := startServer(t, 2)

	err := c.Switch(desktop.Index(9))
	if !errors.Is(err, vderr.DesktopNotFound) {
		t.Fatalf("Switch(#9) error = %v, want DesktopNotFound", err)
	}
	var verr *vderr.Error
	if !errors.As(err, &verr) || verr.Kind != vderr.DesktopNotFound {
		t.Errorf("errors.As(*vderr.Error) = %v", verr)
	}
	if err := c.PinWindow(0x1); !errors.Is(err, vderr.WindowNotFound) {
		t.Errorf("PinWindow(unknown) error = %v, want WindowNotFound", err)
	}
}

func TestRecentEventsAndSubscribe(t *testing.T) {
	c, _, events := startServer(t, 1)
	events.recent = []listener.Event{{Kind: listener.Created}, {Kind: listener.NameChanged, Name: "a"}}

	got, err := c.RecentEvents(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != listener.NameChanged {
		t.Errorf("RecentEvents(1) = %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan listener.Event, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Subscribe(ctx, func(ev listener.Event) { received <- ev })
	}()
	deadline := time.Now().Add(2 * time.Second)
	for events.subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	events.publish(listener.Event{Kind: listener.WallpaperChanged, Path: "x.png"})
	select {
	case ev := <-received:
		if ev.Kind != listener.WallpaperChanged || ev.Path != "x.png" {
			t.Errorf("streamed event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no streamed event")
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Subscribe() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestUnknownCommandAndBadPayload(t *testing.T) {
	c, _, _ := startServer(t, 1)
	if _, err := c.sendRequest("BOGUS", nil); err == nil {
		t.Errorf("BOGUS command error = nil")
	}
	if _, err := c.sendRequest(CommandSwitch, nil); err == nil {
		t.Errorf("SWITCH without payload error = nil")
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	c := NewClientWithSocket(filepath.Join(t.TempDir(), "absent.sock"))
	if err := c.Ping(); err == nil {
		t.Errorf("Ping() without daemon error = nil")
	}
}

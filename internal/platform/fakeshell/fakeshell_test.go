package fakeshell

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vderr"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
	ch   chan string
}

func newRecorder() *recorder { return &recorder{ch: make(chan string, 64)} }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
		return ""
	}
}

func (r *recorder) Created(platform.VirtualDesktop)                      { r.add("created") }
func (r *recorder) DestroyBegin(_, _ platform.VirtualDesktop)            { r.add("destroy-begin") }
func (r *recorder) DestroyFailed(_, _ platform.VirtualDesktop)           { r.add("destroy-failed") }
func (r *recorder) Destroyed(_, _ platform.VirtualDesktop)               { r.add("destroyed") }
func (r *recorder) IsPerMonitorChanged(bool)                             { r.add("per-monitor") }
func (r *recorder) Moved(platform.VirtualDesktop, int64, int64)          { r.add("moved") }
func (r *recorder) NameChanged(_ platform.VirtualDesktop, name string)   { r.add("name " + name) }
func (r *recorder) ViewChanged(platform.ApplicationView)                 { r.add("view") }
func (r *recorder) CurrentChanged(_, _ platform.VirtualDesktop)          { r.add("current") }
func (r *recorder) WallpaperChanged(_ platform.VirtualDesktop, p string) { r.add("wallpaper " + p) }

func connect(t *testing.T, s *Shell) (*Connector, platform.ServiceProvider, platform.ManagerInternal) {
	t.Helper()
	c := s.NewConnector()
	p, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	m, err := p.ManagerInternal()
	if err != nil {
		t.Fatalf("ManagerInternal() error = %v", err)
	}
	return c, p, m
}

func TestDesktopsAndCurrent(t *testing.T) {
	s := New(3)
	defer s.Close()
	_, _, m := connect(t, s)

	n, err := m.Count()
	if err != nil || n != 3 {
		t.Fatalf("Count() = %d, %v, want 3, nil", n, err)
	}
	ds, err := m.Desktops()
	if err != nil {
		t.Fatalf("Desktops() error = %v", err)
	}
	ids := s.IDs()
	for i, d := range ds {
		id, err := d.ID()
		if err != nil || id != ids[i] {
			t.Errorf("Desktops()[%d].ID() = %v, %v, want %v", i, id, err, ids[i])
		}
	}
	if err := m.Switch(ds[2]); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if got := s.CurrentIndex(); got != 2 {
		t.Errorf("CurrentIndex() = %d, want 2", got)
	}
	platform.ReleaseAll(ds)
}

func TestFindMissReturnsElementNotFound(t *testing.T) {
	s := New(1)
	defer s.Close()
	_, _, m := connect(t, s)
	_, err := m.Find(desktop.MustParseID("{00000000-0000-0000-0000-000000000001}"))
	if !errors.Is(err, vderr.ElementNotFound) {
		t.Errorf("Find(unknown) error = %v, want ElementNotFound", err)
	}
}

func TestNotificationsFollowMutations(t *testing.T) {
	s := New(2)
	defer s.Close()
	_, p, m := connect(t, s)
	ns, err := p.NotificationService()
	if err != nil {
		t.Fatalf("NotificationService() error = %v", err)
	}
	r := newRecorder()
	if _, err := ns.Register(r); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	d, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := r.next(t); got != "created" {
		t.Errorf("after Create got %q, want created", got)
	}
	if err := m.SetName(d, "work"); err != nil {
		t.Fatalf("SetName() error = %v", err)
	}
	if got := r.next(t); got != "name work" {
		t.Errorf("after SetName got %q, want %q", got, "name work")
	}
	if err := m.Switch(d); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if got := r.next(t); got != "current" {
		t.Errorf("after Switch got %q, want current", got)
	}

	fb, _ := m.Current()
	first, _ := m.Desktops()
	if err := m.Remove(d, first[0]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	for _, want := range []string{"destroy-begin", "current", "destroyed"} {
		if got := r.next(t); got != want {
			t.Errorf("after Remove got %q, want %q", got, want)
		}
	}
	fb.Release()
	platform.ReleaseAll(first)
}

func TestCrashAndRestart(t *testing.T) {
	s := New(2)
	defer s.Close()
	c, _, m := connect(t, s)

	s.Crash()
	if _, err := m.Count(); !errors.Is(err, vderr.RPCServerUnavailable) {
		t.Errorf("Count() during outage error = %v, want RPC unavailable", err)
	}
	if _, err := c.Connect(); !errors.Is(err, vderr.RPCServerUnavailable) {
		t.Errorf("Connect() during outage error = %v, want RPC unavailable", err)
	}

	s.Restart()
	if _, err := m.Count(); !errors.Is(err, vderr.ObjectNotConnected) {
		t.Errorf("Count() on stale object error = %v, want ObjectNotConnected", err)
	}
	_, _, fresh := connect(t, s)
	if n, err := fresh.Count(); err != nil || n != 2 {
		t.Errorf("Count() after reconnect = %d, %v, want 2, nil", n, err)
	}
}

func TestDropRegistrations(t *testing.T) {
	s := New(1)
	defer s.Close()
	_, p, _ := connect(t, s)
	ns, _ := p.NotificationService()
	if _, err := ns.Register(newRecorder()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := s.Registrations(); got != 1 {
		t.Fatalf("Registrations() = %d, want 1", got)
	}
	s.DropRegistrations()
	if got := s.Registrations(); got != 0 {
		t.Errorf("Registrations() after drop = %d, want 0", got)
	}
}

func TestFailOpAndNulls(t *testing.T) {
	s := New(2)
	defer s.Close()
	_, _, m := connect(t, s)

	s.FailOp("count", 1, vderr.CodeFail)
	if _, err := m.Count(); vderr.KindOf(err) != vderr.Native {
		t.Errorf("Count() error = %v, want native failure", err)
	}
	if _, err := m.Count(); err != nil {
		t.Errorf("second Count() error = %v, want nil", err)
	}

	s.NullNext(1)
	if _, err := m.Current(); !errors.Is(err, vderr.AllocatedNullPtr) {
		t.Errorf("Current() error = %v, want AllocatedNullPtr", err)
	}
}

func TestOverlapsAreCounted(t *testing.T) {
	s := New(1)
	defer s.Close()
	s.SetDelay(10 * time.Millisecond)
	c, _, m := connect(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Count()
		}()
	}
	wg.Wait()
	if c.Overlaps() == 0 {
		t.Errorf("Overlaps() = 0 after concurrent calls, want > 0")
	}
}

func TestReleaseBalancesLiveObjects(t *testing.T) {
	s := New(3)
	defer s.Close()
	c := s.NewConnector()
	p, err := c.Connect()
	if err != nil {
		t.Fatal(err)
	}
	m, _ := p.ManagerInternal()
	ds, _ := m.Desktops()
	platform.ReleaseAll(ds)
	m.Release()
	p.Release()
	if got := s.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestWindows(t *testing.T) {
	s := New(2)
	defer s.Close()
	_, p, m := connect(t, s)
	hwnd := s.AddWindow("App.One", 0)

	mgr, _ := p.Manager()
	on, err := mgr.IsWindowOnCurrentDesktop(hwnd)
	if err != nil || !on {
		t.Errorf("IsWindowOnCurrentDesktop() = %v, %v, want true, nil", on, err)
	}
	ids := s.IDs()
	if err := mgr.MoveWindowToDesktop(hwnd, ids[1]); err != nil {
		t.Fatalf("MoveWindowToDesktop() error = %v", err)
	}
	if got := s.WindowIndex(hwnd); got != 1 {
		t.Errorf("WindowIndex() = %d, want 1", got)
	}

	vc, _ := p.ViewCollection()
	v, err := vc.ViewForWindow(hwnd)
	if err != nil {
		t.Fatalf("ViewForWindow() error = %v", err)
	}
	first, _ := m.Desktops()
	if err := m.MoveView(v, first[0]); err != nil {
		t.Fatalf("MoveView() error = %v", err)
	}
	if got := s.WindowIndex(hwnd); got != 0 {
		t.Errorf("WindowIndex() after MoveView = %d, want 0", got)
	}
	if _, err := vc.ViewForWindow(0x1); !errors.Is(err, vderr.ElementNotFound) {
		t.Errorf("ViewForWindow(unknown) error = %v, want ElementNotFound", err)
	}
}

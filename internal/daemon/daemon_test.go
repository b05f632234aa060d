package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/winvd/internal/config"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/ipc"
	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform/fakeshell"
)

func TestBroadcasterRecent(t *testing.T) {
	b := NewBroadcaster(3, nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		b.Send(listener.Event{Kind: listener.NameChanged, Name: name})
	}
	names := func(evs []listener.Event) string {
		var s []string
		for _, ev := range evs {
			s = append(s, ev.Name)
		}
		return strings.Join(s, ",")
	}
	if got := names(b.Recent(0)); got != "b,c,d" {
		t.Errorf("Recent(0) = %q, want %q", got, "b,c,d")
	}
	if got := names(b.Recent(2)); got != "c,d" {
		t.Errorf("Recent(2) = %q, want %q", got, "c,d")
	}
	if got := names(NewBroadcaster(4, nil).Recent(0)); got != "" {
		t.Errorf("empty Recent(0) = %q, want empty", got)
	}
}

func TestBroadcasterSubscribe(t *testing.T) {
	b := NewBroadcaster(4, nil)
	ch, cancel := b.Subscribe()
	if n := b.Subscribers(); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Send(listener.Event{Kind: listener.Created})
	}
	if got := b.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
	if ev := <-ch; ev.Kind != listener.Created {
		t.Errorf("received %q, want Created", ev.Kind)
	}
	cancel()
	cancel()
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() after cancel = %d, want 0", n)
	}

	b.Close()
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Errorf("Subscribe() after Close returned an open channel")
	}
}

func TestBroadcasterJournalsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	j, err := journal.New(journal.Config{Enabled: true, Level: journal.LevelDebug, FilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBroadcaster(2, j)
	b.Send(listener.Event{Kind: listener.WallpaperChanged, Path: `C:\w.png`})
	b.Close()
	j.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[EVENT]") || !strings.Contains(string(data), "WallpaperChanged") {
		t.Errorf("journal = %q, want an EVENT line for WallpaperChanged", data)
	}
}

func TestBroadcasterJournalsOffTheSendPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	j, err := journal.New(journal.Config{Enabled: true, Level: journal.LevelDebug, FilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	b := NewBroadcaster(4, j)
	const total = journalBuffer * 4
	for i := 0; i < total; i++ {
		b.Send(listener.Event{Kind: listener.Created})
	}
	b.Close()
	b.Close()
	b.Send(listener.Event{Kind: listener.Created})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Count(string(data), "[EVENT]")
	if lines == 0 {
		t.Fatalf("journal has no EVENT lines")
	}
	if got := int64(lines) + b.Dropped(); got != total {
		t.Errorf("journaled %d + dropped %d = %d, want %d", lines, b.Dropped(), got, total)
	}
}

type stubProber struct {
	n   uint32
	err error
}

func (p *stubProber) Count() (uint32, error) { return p.n, p.err }

func TestMonitorTransitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	j, err := journal.New(journal.Config{Enabled: true, Level: journal.LevelInfo, FilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	p := &stubProber{n: 2}
	m := NewMonitor(MonitorConfig{Journal: j}, p)
	if got := m.ProbeNow(); !got.Connected || got.Count != 2 {
		t.Errorf("ProbeNow() = %+v, want connected with 2", got)
	}

	p.err = errors.New("rpc unavailable")
	if got := m.ProbeNow(); got.Connected || got.Error == "" {
		t.Errorf("ProbeNow() while down = %+v", got)
	}
	if got := m.Outages(); got != 1 {
		t.Errorf("Outages() = %d, want 1", got)
	}

	p.err, p.n = nil, 3
	m.ProbeNow()
	if last := m.Last(); !last.Connected || last.Count != 3 {
		t.Errorf("Last() = %+v, want connected with 3", last)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "[RECONNECT]"); got != 1 {
		t.Errorf("journal has %d RECONNECT lines, want 1:\n%s", got, data)
	}
}

type panicProber struct{}

func (panicProber) Count() (uint32, error) { panic("boom") }

func TestMonitorRecoversPanic(t *testing.T) {
	m := NewMonitor(MonitorConfig{}, panicProber{})
	m.ProbeNow()
	if m.Last().Connected {
		t.Errorf("Last().Connected = true after panic")
	}
}

func TestRun(t *testing.T) {
	sh := fakeshell.New(2)
	defer sh.Close()

	dir, err := os.MkdirTemp("", "winvd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	cfg := config.DefaultConfig()
	cfg.Journal.Enabled = false
	cfg.Listener.Interval = 10 * time.Millisecond

	ready := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Config:     cfg,
			Connector:  sh.NewConnector(),
			SocketPath: filepath.Join(dir, "d.sock"),
			PIDPath:    filepath.Join(dir, "d.pid"),
			Ready:      func(path string) { ready <- path },
		})
	}()

	var socket string
	select {
	case socket = <-ready:
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon not ready")
	}

	if pid, err := ReadPID(filepath.Join(dir, "d.pid")); err != nil || pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, %v, want %d", pid, err, os.Getpid())
	}

	c := ipc.NewClientWithSocket(socket)
	var st *ipc.StatusData
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, err = c.GetStatus(); err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if st.Listener == "registered" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !st.Connected || st.Count != 2 || st.Listener != "registered" {
		t.Errorf("GetStatus() = %+v, want connected, 2 desktops, listener registered", st)
	}

	if err := c.SetName(mustCurrent(t, c), "daemon"); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(2 * time.Second)
	var evs []listener.Event
	for time.Now().Before(deadline) {
		if evs, err = c.RecentEvents(0); err == nil && len(evs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(evs) == 0 || evs[len(evs)-1].Name != "daemon" {
		t.Errorf("RecentEvents() = %+v, want the rename", evs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("socket still present after shutdown: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "d.pid")); !os.IsNotExist(err) {
		t.Errorf("pid file still present after shutdown: %v", err)
	}
}

func mustCurrent(t *testing.T, c *ipc.Client) desktop.Ref {
	t.Helper()
	ref, err := c.Current()
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

// Package listener keeps a shell notification registration alive on its own
// thread and turns callbacks into Events.
//
// The shell drops registrations silently when it restarts, so the listener
// probes the connection on every tick of its pump and registers a fresh
// callback object whenever the probe fails.
package listener

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/session"
)

// DefaultInterval is the probe period.
const DefaultInterval = 3 * time.Second

// State is the registration state of a listener.
type State int32

const (
	Unregistered State = iota
	Registering
	Registered
	Dead
	Stopped
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case Dead:
		return "dead"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds configuration for a listener.
type Config struct {
	Connector platform.Connector
	Interval  time.Duration
	Session   session.Options
	Logger    *slog.Logger
}

// Handle controls a running listener.
type Handle struct {
	sink   Sink
	logger *slog.Logger
	pump   platform.Pump

	state   atomic.Int32
	regs    atomic.Int64
	events  atomic.Int64
	dropped atomic.Int64

	// Owned by the listener thread.
	cookie  platform.Cookie
	current *callback

	done     chan struct{}
	stopOnce sync.Once
}

// Start launches the listener thread. It returns once the thread is attached
// and has its pump; registration itself may still be failing and is retried
// on every tick.
func Start(cfg Config, sink Sink) (*Handle, error) {
	if cfg.Connector == nil {
		return nil, fmt.Errorf("listener: no connector")
	}
	if sink == nil {
		return nil, fmt.Errorf("listener: no sink")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handle{
		sink:   sink,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
	ready := make(chan error, 1)
	go h.run(cfg, ready)
	if err := <-ready; err != nil {
		<-h.done
		return nil, err
	}
	return h, nil
}

func (h *Handle) run(cfg Config, ready chan<- error) {
	defer close(h.done)
	defer h.setState(Stopped)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	detach, err := cfg.Connector.Attach()
	if err != nil {
		ready <- fmt.Errorf("listener: attach thread: %w", err)
		return
	}
	defer detach()
	pump, err := cfg.Connector.NewPump(cfg.Interval)
	if err != nil {
		ready <- fmt.Errorf("listener: create pump: %w", err)
		return
	}
	defer pump.Close()
	h.pump = pump

	s := session.New(cfg.Connector, cfg.Session)
	defer s.DropAll()
	ready <- nil

	h.logger.Info("listener started", "interval", cfg.Interval)
	h.tick(s)
	for pump.Wait() {
		h.tick(s)
	}
	h.unregister(s)
	h.logger.Info("listener stopped")
}

// tick re-registers when there is no registration or the service no longer
// answers through the objects it was made with.
func (h *Handle) tick(s *session.Session) {
	if h.State() == Registered && s.IsConnected() {
		return
	}
	if h.State() == Registered {
		h.setState(Dead)
		h.logger.Warn("listener: connection lost", "cookie", uint32(h.cookie))
	}
	h.unregister(s)
	s.DropAll()

	h.setState(Registering)
	cb := &callback{h: h}
	cookie, err := s.Register(cb)
	if err != nil {
		h.setState(Unregistered)
		h.logger.Warn("listener: registration failed", "error", err)
		return
	}
	h.cookie = cookie
	h.current = cb
	h.regs.Add(1)
	h.setState(Registered)
	h.logger.Info("listener registered", "cookie", uint32(cookie))
}

// unregister retires the current callback and drops its cookie. Errors are
// ignored: the cookie is usually stale when this runs.
func (h *Handle) unregister(s *session.Session) {
	if h.current != nil {
		h.current.retired.Store(true)
		h.current = nil
	}
	if h.cookie != 0 {
		if err := s.Unregister(h.cookie); err != nil {
			h.logger.Debug("listener: unregister failed", "cookie", uint32(h.cookie), "error", err)
		}
		h.cookie = 0
	}
}

func (h *Handle) setState(st State) { h.state.Store(int32(st)) }

// State returns the current registration state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Registrations returns how many times a callback was registered.
func (h *Handle) Registrations() int64 { return h.regs.Load() }

// Delivered returns how many events reached the sink.
func (h *Handle) Delivered() int64 { return h.events.Load() }

// Dropped returns how many events the sink refused or could not be built.
func (h *Handle) Dropped() int64 { return h.dropped.Load() }

// Stop asks the thread to unregister and exit, and waits for it.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() { h.pump.Quit() })
	<-h.done
}

func (h *Handle) push(ev Event) {
	if err := h.sink.Send(ev); err != nil {
		h.dropped.Add(1)
		h.logger.Debug("listener: event dropped", "kind", string(ev.Kind), "error", err)
		return
	}
	h.events.Add(1)
}

// callback is the Notification registered with the shell. A retired callback
// still receives calls until the shell lets go of it and ignores them.
type callback struct {
	h       *Handle
	retired atomic.Bool
}

var _ platform.Notification = (*callback)(nil)

// ref identifies a borrowed desktop. Callback arguments belong to the shell
// and are never released here.
func (c *callback) ref(d platform.VirtualDesktop) (desktop.Ref, error) {
	b := platform.Borrowed(d)
	if !b.Valid() {
		return desktop.Ref{}, fmt.Errorf("no desktop")
	}
	id, err := b.Get().ID()
	if err != nil {
		return desktop.Ref{}, err
	}
	return desktop.WithID(id), nil
}

func (c *callback) emit(kind Kind, build func(ev *Event) error) {
	if c.retired.Load() {
		return
	}
	ev := Event{Kind: kind, Time: time.Now()}
	if err := build(&ev); err != nil {
		c.h.dropped.Add(1)
		c.h.logger.Warn("listener: could not resolve event", "kind", string(kind), "error", err)
		return
	}
	c.h.push(ev)
}

func (c *callback) Created(d platform.VirtualDesktop) {
	c.emit(Created, func(ev *Event) (err error) {
		ev.Desktop, err = c.ref(d)
		return err
	})
}

func (c *callback) DestroyBegin(d, fallback platform.VirtualDesktop) {
	c.h.logger.Debug("listener: desktop destroy begin")
}

func (c *callback) DestroyFailed(d, fallback platform.VirtualDesktop) {
	c.h.logger.Debug("listener: desktop destroy failed")
}

func (c *callback) Destroyed(d, fallback platform.VirtualDesktop) {
	c.emit(Destroyed, func(ev *Event) (err error) {
		if ev.Desktop, err = c.ref(d); err != nil {
			return err
		}
		ev.Fallback, err = c.ref(fallback)
		return err
	})
}

func (c *callback) IsPerMonitorChanged(perMonitor bool) {
	c.h.logger.Debug("listener: per-monitor desktops changed", "per_monitor", perMonitor)
}

func (c *callback) Moved(d platform.VirtualDesktop, oldIndex, newIndex int64) {
	c.emit(Moved, func(ev *Event) (err error) {
		ev.OldIndex, ev.NewIndex = oldIndex, newIndex
		ev.Desktop, err = c.ref(d)
		return err
	})
}

func (c *callback) NameChanged(d platform.VirtualDesktop, name string) {
	c.emit(NameChanged, func(ev *Event) (err error) {
		ev.Name = name
		ev.Desktop, err = c.ref(d)
		return err
	})
}

func (c *callback) ViewChanged(view platform.ApplicationView) {
	c.emit(ViewChanged, func(ev *Event) (err error) {
		v := platform.Borrowed(view)
		if !v.Valid() {
			return fmt.Errorf("no view")
		}
		ev.Window, err = v.Get().Window()
		return err
	})
}

func (c *callback) CurrentChanged(old, new platform.VirtualDesktop) {
	c.emit(CurrentChanged, func(ev *Event) (err error) {
		if ev.Old, err = c.ref(old); err != nil {
			return err
		}
		ev.New, err = c.ref(new)
		return err
	})
}

func (c *callback) WallpaperChanged(d platform.VirtualDesktop, path string) {
	c.emit(WallpaperChanged, func(ev *Event) (err error) {
		ev.Path = path
		ev.Desktop, err = c.ref(d)
		return err
	})
}

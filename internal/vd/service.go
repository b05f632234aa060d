// Package vd is the synchronous virtual desktop API.
//
// Every call is forwarded to one actor thread that owns the shell objects, so
// a Service may be used from any number of goroutines. Desktops are addressed
// with desktop.Ref values: an index, an ID, or both.
package vd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/1broseidon/winvd/internal/actor"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/session"
)

// Config holds configuration for a Service. The zero value uses the native
// connector with default retry and priority settings.
type Config struct {
	Connector platform.Connector
	// ListenerConnector is used by Listen; it defaults to Connector.
	ListenerConnector platform.Connector
	MaxAttempts       int
	Priority          platform.Priority
	ListenInterval    time.Duration
	Session           session.Options
	Journal           *journal.Journal
	Logger            *slog.Logger
}

// Service is a running actor plus the settings for listeners started from it.
type Service struct {
	actor   *actor.Actor
	cfg     Config
	journal *journal.Journal
	logger  *slog.Logger
}

// DesktopInfo describes one desktop for listings.
type DesktopInfo struct {
	Index   uint32     `json:"index"`
	ID      desktop.ID `json:"id"`
	Name    string     `json:"name"`
	Current bool       `json:"current"`
}

// New starts a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Connector == nil {
		cfg.Connector = platform.NewConnector()
	}
	if cfg.ListenerConnector == nil {
		cfg.ListenerConnector = cfg.Connector
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a, err := actor.New(actor.Config{
		Connector:   cfg.Connector,
		MaxAttempts: cfg.MaxAttempts,
		Priority:    cfg.Priority,
		Session:     cfg.Session,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("start desktop service: %w", err)
	}
	return &Service{actor: a, cfg: cfg, journal: cfg.Journal, logger: cfg.Logger}, nil
}

// Close stops the actor thread.
func (s *Service) Close() { s.actor.Close() }

// Stats returns the actor's call counters.
func (s *Service) Stats() actor.Stats { return s.actor.Stats() }

// Listen starts a notification listener delivering to sink. The caller stops
// it.
func (s *Service) Listen(sink listener.Sink) (*listener.Handle, error) {
	return listener.Start(listener.Config{
		Connector: s.cfg.ListenerConnector,
		Interval:  s.cfg.ListenInterval,
		Logger:    s.logger,
	}, sink)
}

func (s *Service) record(action journal.Action, target string, details map[string]any) {
	s.journal.Record(action, target, details)
	s.logger.Debug("desktop changed", "action", string(action), "target", target)
}

func call[T any](s *Service, fn func(*session.Session) (T, error)) (T, error) {
	return actor.Call(s.actor, fn)
}

func exec(s *Service, fn func(*session.Session) error) error {
	_, err := s.actor.Do(func(ss *session.Session) (any, error) { return nil, fn(ss) })
	return err
}

// Connected reports whether the shell answers. The probe is a desktop count,
// so a stale connection is dropped and retried like any other call.
func (s *Service) Connected() bool {
	n, err := s.Count()
	return err == nil && n > 0
}

// Reset drops every cached shell object; the next call reconnects.
func (s *Service) Reset() error {
	return exec(s, func(ss *session.Session) error {
		ss.DropAll()
		return nil
	})
}

func (s *Service) Count() (uint32, error) {
	return call(s, (*session.Session).Count)
}

func (s *Service) Desktops() ([]desktop.Ref, error) {
	return call(s, (*session.Session).Desktops)
}

func (s *Service) Current() (desktop.Ref, error) {
	return call(s, (*session.Session).Current)
}

// Describe lists every desktop with its name and marks the current one, all
// from one pass on the actor thread.
func (s *Service) Describe() ([]DesktopInfo, error) {
	return call(s, func(ss *session.Session) ([]DesktopInfo, error) {
		refs, err := ss.Desktops()
		if err != nil {
			return nil, err
		}
		cur, err := ss.Current()
		if err != nil {
			return nil, err
		}
		out := make([]DesktopInfo, 0, len(refs))
		for _, r := range refs {
			name, err := ss.Name(r)
			if err != nil {
				return nil, err
			}
			i, _ := r.Index()
			id, _ := r.ID()
			out = append(out, DesktopInfo{Index: i, ID: id, Name: name, Current: r.SameAs(cur)})
		}
		return out, nil
	})
}

func (s *Service) Resolve(ref desktop.Ref) (desktop.Ref, error) {
	return call(s, func(ss *session.Session) (desktop.Ref, error) { return ss.Resolve(ref) })
}

func (s *Service) IndexOf(ref desktop.Ref) (uint32, error) {
	return call(s, func(ss *session.Session) (uint32, error) { return ss.IndexOf(ref) })
}

func (s *Service) IDOf(ref desktop.Ref) (desktop.ID, error) {
	return call(s, func(ss *session.Session) (desktop.ID, error) { return ss.IDOf(ref) })
}

func (s *Service) SameDesktop(a, b desktop.Ref) (bool, error) {
	return call(s, func(ss *session.Session) (bool, error) { return ss.SameDesktop(a, b) })
}

func (s *Service) Switch(ref desktop.Ref) error {
	err := exec(s, func(ss *session.Session) error { return ss.Switch(ref) })
	if err == nil {
		s.record(journal.ActionSwitch, ref.String(), nil)
	}
	return err
}

func (s *Service) Create() (desktop.Ref, error) {
	ref, err := call(s, (*session.Session).Create)
	if err == nil {
		s.record(journal.ActionCreate, ref.String(), nil)
	}
	return ref, err
}

// Remove deletes ref. A zero fallback picks a neighbour.
func (s *Service) Remove(ref, fallback desktop.Ref) error {
	err := exec(s, func(ss *session.Session) error { return ss.Remove(ref, fallback) })
	if err == nil {
		s.record(journal.ActionRemove, ref.String(), map[string]any{"fallback": fallback.String()})
	}
	return err
}

func (s *Service) Name(ref desktop.Ref) (string, error) {
	return call(s, func(ss *session.Session) (string, error) { return ss.Name(ref) })
}

func (s *Service) SetName(ref desktop.Ref, name string) error {
	err := exec(s, func(ss *session.Session) error { return ss.SetName(ref, name) })
	if err == nil {
		s.record(journal.ActionRename, ref.String(), map[string]any{"name": name})
	}
	return err
}

func (s *Service) Wallpaper(ref desktop.Ref) (string, error) {
	return call(s, func(ss *session.Session) (string, error) { return ss.Wallpaper(ref) })
}

func (s *Service) SetWallpaper(ref desktop.Ref, path string) error {
	err := exec(s, func(ss *session.Session) error { return ss.SetWallpaper(ref, path) })
	if err == nil {
		s.record(journal.ActionWallpaper, ref.String(), map[string]any{"path": path})
	}
	return err
}

func (s *Service) SetWallpaperForAll(path string) error {
	err := exec(s, func(ss *session.Session) error { return ss.SetWallpaperForAll(path) })
	if err == nil {
		s.record(journal.ActionWallpaper, "all", map[string]any{"path": path})
	}
	return err
}

func (s *Service) MoveDesktop(ref desktop.Ref, index uint32) error {
	err := exec(s, func(ss *session.Session) error { return ss.MoveDesktop(ref, index) })
	if err == nil {
		s.record(journal.ActionMoveDesktop, ref.String(), map[string]any{"index": index})
	}
	return err
}

func (s *Service) Adjacent(ref desktop.Ref, dir platform.Direction) (desktop.Ref, error) {
	return call(s, func(ss *session.Session) (desktop.Ref, error) { return ss.Adjacent(ref, dir) })
}

func (s *Service) WindowDesktop(hwnd platform.HWND) (desktop.Ref, error) {
	return call(s, func(ss *session.Session) (desktop.Ref, error) { return ss.WindowDesktop(hwnd) })
}

func (s *Service) IsWindowOnCurrent(hwnd platform.HWND) (bool, error) {
	return call(s, func(ss *session.Session) (bool, error) { return ss.IsWindowOnCurrent(hwnd) })
}

func (s *Service) IsWindowOnDesktop(hwnd platform.HWND, ref desktop.Ref) (bool, error) {
	return call(s, func(ss *session.Session) (bool, error) { return ss.IsWindowOnDesktop(hwnd, ref) })
}

func (s *Service) MoveWindow(hwnd platform.HWND, ref desktop.Ref) error {
	err := exec(s, func(ss *session.Session) error { return ss.MoveWindow(hwnd, ref) })
	if err == nil {
		s.record(journal.ActionMoveWindow, windowTarget(hwnd), map[string]any{"desktop": ref.String()})
	}
	return err
}

func (s *Service) FocusedWindow() (platform.HWND, error) {
	return call(s, (*session.Session).FocusedWindow)
}

func (s *Service) IsWindowPinned(hwnd platform.HWND) (bool, error) {
	return call(s, func(ss *session.Session) (bool, error) { return ss.IsWindowPinned(hwnd) })
}

func (s *Service) PinWindow(hwnd platform.HWND) error {
	err := exec(s, func(ss *session.Session) error { return ss.PinWindow(hwnd) })
	if err == nil {
		s.record(journal.ActionPin, windowTarget(hwnd), map[string]any{"scope": "window"})
	}
	return err
}

func (s *Service) UnpinWindow(hwnd platform.HWND) error {
	err := exec(s, func(ss *session.Session) error { return ss.UnpinWindow(hwnd) })
	if err == nil {
		s.record(journal.ActionUnpin, windowTarget(hwnd), map[string]any{"scope": "window"})
	}
	return err
}

func (s *Service) IsAppPinned(hwnd platform.HWND) (bool, error) {
	return call(s, func(ss *session.Session) (bool, error) { return ss.IsAppPinned(hwnd) })
}

func (s *Service) PinApp(hwnd platform.HWND) error {
	err := exec(s, func(ss *session.Session) error { return ss.PinApp(hwnd) })
	if err == nil {
		s.record(journal.ActionPin, windowTarget(hwnd), map[string]any{"scope": "app"})
	}
	return err
}

func (s *Service) UnpinApp(hwnd platform.HWND) error {
	err := exec(s, func(ss *session.Session) error { return ss.UnpinApp(hwnd) })
	if err == nil {
		s.record(journal.ActionUnpin, windowTarget(hwnd), map[string]any{"scope": "app"})
	}
	return err
}

func windowTarget(hwnd platform.HWND) string {
	return fmt.Sprintf("0x%X", uintptr(hwnd))
}

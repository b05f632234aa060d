// Package session owns the native service objects used by one thread.
//
// A Session creates each service reference on first use and keeps it until
// DropAll. It never retries: every operation returns the classified error of
// the first failing native call, with element-not-found translated into
// DesktopNotFound or WindowNotFound where the call site knows which one it
// means. A Session is not safe for concurrent use.
package session

import (
	"errors"
	"sync/atomic"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vderr"
)

// Guard observes every public Session call. Enter returns the function
// that ends the call.
type Guard interface {
	Enter(op string) (exit func())
}

// OccupancyGuard counts calls that start while another is still running.
type OccupancyGuard struct {
	current  atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int64
}

func (g *OccupancyGuard) Enter(string) func() {
	g.calls.Add(1)
	if g.current.Add(1) > 1 {
		g.overlaps.Add(1)
	}
	return func() { g.current.Add(-1) }
}

// Overlaps returns how many calls overlapped another.
func (g *OccupancyGuard) Overlaps() int { return int(g.overlaps.Load()) }

// Calls returns how many calls were observed.
func (g *OccupancyGuard) Calls() int64 { return g.calls.Load() }

type Options struct {
	// Guard, when set, sees every public call.
	Guard Guard
}

type Session struct {
	conn  platform.Connector
	guard Guard

	provider platform.Handle[platform.ServiceProvider]
	manager  platform.Handle[platform.Manager]
	internal platform.Handle[platform.ManagerInternal]
	notify   platform.Handle[platform.NotificationService]
	pinned   platform.Handle[platform.PinnedApps]
	views    platform.Handle[platform.ViewCollection]
}

// New returns a Session that connects through conn on first use. It must be
// used only on the thread conn was attached to.
func New(conn platform.Connector, opts Options) *Session {
	return &Session{conn: conn, guard: opts.Guard}
}

func (s *Session) track(op string) func() {
	if s.guard == nil {
		return func() {}
	}
	return s.guard.Enter(op)
}

// DropAll releases every cached reference, children before the provider.
// The next call reconnects.
func (s *Session) DropAll() {
	s.views.Release()
	s.pinned.Release()
	s.notify.Release()
	s.internal.Release()
	s.manager.Release()
	s.provider.Release()
}

func (s *Session) root() (platform.ServiceProvider, error) {
	if !s.provider.Valid() {
		p, err := s.conn.Connect()
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, vderr.New("connect", vderr.AllocatedNullPtr)
		}
		s.provider = platform.Owned(p)
	}
	return s.provider.Get(), nil
}

// cached fills h from get on first use.
func cached[T platform.Object](s *Session, h *platform.Handle[T], get func(platform.ServiceProvider) (T, error)) (T, error) {
	var zero T
	if h.Valid() {
		return h.Get(), nil
	}
	p, err := s.root()
	if err != nil {
		return zero, err
	}
	obj, err := get(p)
	if err != nil {
		return zero, err
	}
	*h = platform.Owned(obj)
	if !h.Valid() {
		return zero, vderr.New("query service", vderr.AllocatedNullPtr)
	}
	return obj, nil
}

func (s *Session) mgr() (platform.Manager, error) {
	return cached(s, &s.manager, platform.ServiceProvider.Manager)
}

func (s *Session) mi() (platform.ManagerInternal, error) {
	return cached(s, &s.internal, platform.ServiceProvider.ManagerInternal)
}

func (s *Session) ns() (platform.NotificationService, error) {
	return cached(s, &s.notify, platform.ServiceProvider.NotificationService)
}

func (s *Session) pins() (platform.PinnedApps, error) {
	return cached(s, &s.pinned, platform.ServiceProvider.PinnedApps)
}

func (s *Session) vc() (platform.ViewCollection, error) {
	return cached(s, &s.views, platform.ServiceProvider.ViewCollection)
}

// Count returns the number of desktops.
func (s *Session) Count() (uint32, error) {
	defer s.track("count")()
	return s.count()
}

func (s *Session) count() (uint32, error) {
	m, err := s.mi()
	if err != nil {
		return 0, err
	}
	return m.Count()
}

// Desktops enumerates every desktop in order as resolved refs.
func (s *Session) Desktops() ([]desktop.Ref, error) {
	defer s.track("desktops")()
	return s.desktops()
}

func (s *Session) desktops() ([]desktop.Ref, error) {
	m, err := s.mi()
	if err != nil {
		return nil, err
	}
	ds, err := m.Desktops()
	if err != nil {
		return nil, err
	}
	defer platform.ReleaseAll(ds)
	refs := make([]desktop.Ref, len(ds))
	for i, d := range ds {
		id, err := d.ID()
		if err != nil {
			return nil, err
		}
		refs[i] = desktop.IndexAndID(uint32(i), id)
	}
	return refs, nil
}

// indexOfID finds id in a fresh enumeration.
func (s *Session) indexOfID(id desktop.ID) (desktop.Ref, error) {
	refs, err := s.desktops()
	if err != nil {
		return desktop.Ref{}, err
	}
	for _, r := range refs {
		if rid, _ := r.ID(); rid == id {
			return r, nil
		}
	}
	return desktop.Ref{}, vderr.New("resolve", vderr.DesktopNotFound)
}

func (s *Session) atIndex(i uint32) (desktop.Ref, error) {
	refs, err := s.desktops()
	if err != nil {
		return desktop.Ref{}, err
	}
	if int(i) >= len(refs) {
		return desktop.Ref{}, vderr.New("resolve", vderr.DesktopNotFound)
	}
	return refs[i], nil
}

// open returns an owned desktop object for ref. IDs are preferred over
// indexes because they stay valid across reordering.
func (s *Session) open(ref desktop.Ref) (platform.Handle[platform.VirtualDesktop], error) {
	var none platform.Handle[platform.VirtualDesktop]
	m, err := s.mi()
	if err != nil {
		return none, err
	}
	if id, ok := ref.ID(); ok {
		if id.IsNil() {
			return none, vderr.New("find", vderr.DesktopNotFound)
		}
		d, err := m.Find(id)
		if err != nil {
			if errors.Is(err, vderr.AllocatedNullPtr) {
				return none, vderr.New("find", vderr.DesktopNotFound)
			}
			return none, vderr.Remap(err, vderr.DesktopNotFound)
		}
		return platform.Owned(d), nil
	}
	i, ok := ref.Index()
	if !ok {
		return none, vderr.New("resolve", vderr.DesktopNotFound)
	}
	ds, err := m.Desktops()
	if err != nil {
		return none, err
	}
	if int(i) >= len(ds) {
		platform.ReleaseAll(ds)
		return none, vderr.New("resolve", vderr.DesktopNotFound)
	}
	for j, d := range ds {
		if j != int(i) {
			d.Release()
		}
	}
	return platform.Owned(ds[i]), nil
}

// Current returns the current desktop.
func (s *Session) Current() (desktop.Ref, error) {
	defer s.track("current")()
	return s.current()
}

func (s *Session) current() (desktop.Ref, error) {
	m, err := s.mi()
	if err != nil {
		return desktop.Ref{}, err
	}
	d, err := m.Current()
	if err != nil {
		return desktop.Ref{}, err
	}
	h := platform.Owned(d)
	defer h.Release()
	id, err := h.Get().ID()
	if err != nil {
		return desktop.Ref{}, err
	}
	return s.indexOfID(id)
}

// Resolve returns ref with both index and ID filled in. A ref that already
// carries both is returned unchanged.
func (s *Session) Resolve(ref desktop.Ref) (desktop.Ref, error) {
	defer s.track("resolve")()
	return s.resolve(ref)
}

func (s *Session) resolve(ref desktop.Ref) (desktop.Ref, error) {
	if ref.IsResolved() {
		return ref, nil
	}
	if id, ok := ref.ID(); ok {
		if id.IsNil() {
			return desktop.Ref{}, vderr.New("resolve", vderr.DesktopNotFound)
		}
		return s.indexOfID(id)
	}
	if i, ok := ref.Index(); ok {
		return s.atIndex(i)
	}
	return desktop.Ref{}, vderr.New("resolve", vderr.DesktopNotFound)
}

// IndexOf returns the position of ref, checking a bare index against the
// live count.
func (s *Session) IndexOf(ref desktop.Ref) (uint32, error) {
	defer s.track("index of")()
	return s.indexOf(ref)
}

func (s *Session) indexOf(ref desktop.Ref) (uint32, error) {
	if i, ok := ref.Index(); ok {
		if ref.IsResolved() {
			return i, nil
		}
		n, err := s.count()
		if err != nil {
			return 0, err
		}
		if i >= n {
			return 0, vderr.New("index of", vderr.DesktopNotFound)
		}
		return i, nil
	}
	r, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}
	i, _ := r.Index()
	return i, nil
}

// IDOf returns the identifier of ref, checking a bare ID with find.
func (s *Session) IDOf(ref desktop.Ref) (desktop.ID, error) {
	defer s.track("id of")()
	return s.idOf(ref)
}

func (s *Session) idOf(ref desktop.Ref) (desktop.ID, error) {
	if id, ok := ref.ID(); ok {
		if ref.IsResolved() {
			return id, nil
		}
		h, err := s.open(ref)
		if err != nil {
			return desktop.NilID, err
		}
		h.Release()
		return id, nil
	}
	r, err := s.resolve(ref)
	if err != nil {
		return desktop.NilID, err
	}
	id, _ := r.ID()
	return id, nil
}

// SameDesktop compares a and b, consulting the shell only when the refs
// alone cannot decide.
func (s *Session) SameDesktop(a, b desktop.Ref) (bool, error) {
	defer s.track("same desktop")()
	if eq, ok := a.Equal(b); ok {
		return eq, nil
	}
	if _, ok := b.ID(); ok {
		id, err := s.idOf(a)
		if err != nil {
			return false, err
		}
		bid, _ := b.ID()
		return id == bid, nil
	}
	id, err := s.idOf(b)
	if err != nil {
		return false, err
	}
	aid, ok := a.ID()
	if !ok {
		return false, vderr.New("same desktop", vderr.DesktopNotFound)
	}
	return id == aid, nil
}

// Switch makes ref the current desktop.
func (s *Session) Switch(ref desktop.Ref) error {
	defer s.track("switch")()
	h, err := s.open(ref)
	if err != nil {
		return err
	}
	defer h.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.Switch(h.Get()), vderr.DesktopNotFound)
}

// Create appends a desktop and returns it.
func (s *Session) Create() (desktop.Ref, error) {
	defer s.track("create")()
	ref, err := s.create()
	return ref, vderr.Promote(err, vderr.CreateDesktopFailed)
}

func (s *Session) create() (desktop.Ref, error) {
	m, err := s.mi()
	if err != nil {
		return desktop.Ref{}, err
	}
	d, err := m.Create()
	if err != nil {
		return desktop.Ref{}, err
	}
	h := platform.Owned(d)
	defer h.Release()
	id, err := h.Get().ID()
	if err != nil {
		return desktop.Ref{}, err
	}
	return s.indexOfID(id)
}

// Remove deletes ref, moving its windows to fallback. A zero fallback picks
// the left neighbour, or the right one when removing the first desktop.
func (s *Session) Remove(ref, fallback desktop.Ref) error {
	defer s.track("remove")()
	return vderr.Promote(s.remove(ref, fallback), vderr.RemoveDesktopFailed)
}

func (s *Session) remove(ref, fallback desktop.Ref) error {
	target, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if fallback.IsZero() {
		n, err := s.count()
		if err != nil {
			return err
		}
		if n < 2 {
			return vderr.New("remove", vderr.RemoveDesktopFailed)
		}
		i, _ := target.Index()
		if i == 0 {
			fallback = desktop.Index(1)
		} else {
			fallback = desktop.Index(i - 1)
		}
	}
	fb, err := s.resolve(fallback)
	if err != nil {
		return err
	}
	if eq, _ := target.Equal(fb); eq {
		return vderr.New("remove", vderr.RemoveDesktopFailed)
	}
	d, err := s.open(target)
	if err != nil {
		return err
	}
	defer d.Release()
	f, err := s.open(fb)
	if err != nil {
		return err
	}
	defer f.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.Remove(d.Get(), f.Get()), vderr.DesktopNotFound)
}

// Name returns the display name of ref; unnamed desktops return "".
func (s *Session) Name(ref desktop.Ref) (string, error) {
	defer s.track("name")()
	h, err := s.open(ref)
	if err != nil {
		return "", err
	}
	defer h.Release()
	name, err := h.Get().Name()
	return name, vderr.Remap(err, vderr.DesktopNotFound)
}

func (s *Session) SetName(ref desktop.Ref, name string) error {
	defer s.track("set name")()
	h, err := s.open(ref)
	if err != nil {
		return err
	}
	defer h.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.SetName(h.Get(), name), vderr.DesktopNotFound)
}

func (s *Session) Wallpaper(ref desktop.Ref) (string, error) {
	defer s.track("wallpaper")()
	h, err := s.open(ref)
	if err != nil {
		return "", err
	}
	defer h.Release()
	path, err := h.Get().Wallpaper()
	return path, vderr.Remap(err, vderr.DesktopNotFound)
}

func (s *Session) SetWallpaper(ref desktop.Ref, path string) error {
	defer s.track("set wallpaper")()
	h, err := s.open(ref)
	if err != nil {
		return err
	}
	defer h.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.SetWallpaper(h.Get(), path), vderr.DesktopNotFound)
}

func (s *Session) SetWallpaperForAll(path string) error {
	defer s.track("set wallpaper for all")()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return m.SetWallpaperForAll(path)
}

// MoveDesktop moves ref to position index.
func (s *Session) MoveDesktop(ref desktop.Ref, index uint32) error {
	defer s.track("move desktop")()
	n, err := s.count()
	if err != nil {
		return err
	}
	if index >= n {
		return vderr.New("move desktop", vderr.DesktopNotFound)
	}
	h, err := s.open(ref)
	if err != nil {
		return err
	}
	defer h.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.MoveDesktop(h.Get(), index), vderr.DesktopNotFound)
}

// Adjacent returns the neighbour of ref in direction dir.
func (s *Session) Adjacent(ref desktop.Ref, dir platform.Direction) (desktop.Ref, error) {
	defer s.track("adjacent")()
	h, err := s.open(ref)
	if err != nil {
		return desktop.Ref{}, err
	}
	defer h.Release()
	m, err := s.mi()
	if err != nil {
		return desktop.Ref{}, err
	}
	d, err := m.Adjacent(h.Get(), dir)
	if err != nil {
		return desktop.Ref{}, vderr.Remap(err, vderr.DesktopNotFound)
	}
	n := platform.Owned(d)
	defer n.Release()
	id, err := n.Get().ID()
	if err != nil {
		return desktop.Ref{}, err
	}
	return s.indexOfID(id)
}

// WindowDesktop returns the desktop hwnd is on.
func (s *Session) WindowDesktop(hwnd platform.HWND) (desktop.Ref, error) {
	defer s.track("window desktop")()
	id, err := s.windowDesktopID(hwnd)
	if err != nil {
		return desktop.Ref{}, err
	}
	return desktop.WithID(id), nil
}

func (s *Session) windowDesktopID(hwnd platform.HWND) (desktop.ID, error) {
	m, err := s.mgr()
	if err != nil {
		return desktop.NilID, err
	}
	id, err := m.WindowDesktopID(hwnd)
	if err != nil {
		return desktop.NilID, vderr.Remap(err, vderr.WindowNotFound)
	}
	if id.IsNil() {
		return desktop.NilID, vderr.New("window desktop", vderr.WindowNotFound)
	}
	return id, nil
}

func (s *Session) IsWindowOnCurrent(hwnd platform.HWND) (bool, error) {
	defer s.track("is window on current")()
	m, err := s.mgr()
	if err != nil {
		return false, err
	}
	on, err := m.IsWindowOnCurrentDesktop(hwnd)
	return on, vderr.Remap(err, vderr.WindowNotFound)
}

func (s *Session) IsWindowOnDesktop(hwnd platform.HWND, ref desktop.Ref) (bool, error) {
	defer s.track("is window on desktop")()
	wid, err := s.windowDesktopID(hwnd)
	if err != nil {
		return false, err
	}
	id, err := s.idOf(ref)
	if err != nil {
		return false, err
	}
	return wid == id, nil
}

// view returns an owned view for hwnd.
func (s *Session) view(hwnd platform.HWND) (platform.Handle[platform.ApplicationView], error) {
	var none platform.Handle[platform.ApplicationView]
	c, err := s.vc()
	if err != nil {
		return none, err
	}
	v, err := c.ViewForWindow(hwnd)
	if err != nil {
		return none, vderr.Remap(err, vderr.WindowNotFound)
	}
	return platform.Owned(v), nil
}

// MoveWindow moves hwnd to ref.
func (s *Session) MoveWindow(hwnd platform.HWND, ref desktop.Ref) error {
	defer s.track("move window")()
	v, err := s.view(hwnd)
	if err != nil {
		return err
	}
	defer v.Release()
	d, err := s.open(ref)
	if err != nil {
		return err
	}
	defer d.Release()
	m, err := s.mi()
	if err != nil {
		return err
	}
	return vderr.Remap(m.MoveView(v.Get(), d.Get()), vderr.WindowNotFound)
}

// FocusedWindow returns the window whose view has focus.
func (s *Session) FocusedWindow() (platform.HWND, error) {
	defer s.track("focused window")()
	c, err := s.vc()
	if err != nil {
		return 0, err
	}
	v, err := c.ViewInFocus()
	if err != nil {
		return 0, vderr.Remap(err, vderr.WindowNotFound)
	}
	h := platform.Owned(v)
	defer h.Release()
	return h.Get().Window()
}

func (s *Session) withView(hwnd platform.HWND, fn func(platform.PinnedApps, platform.ApplicationView) error) error {
	v, err := s.view(hwnd)
	if err != nil {
		return err
	}
	defer v.Release()
	p, err := s.pins()
	if err != nil {
		return err
	}
	return vderr.Remap(fn(p, v.Get()), vderr.WindowNotFound)
}

func (s *Session) IsWindowPinned(hwnd platform.HWND) (bool, error) {
	defer s.track("is window pinned")()
	var pinned bool
	err := s.withView(hwnd, func(p platform.PinnedApps, v platform.ApplicationView) error {
		var err error
		pinned, err = p.IsViewPinned(v)
		return err
	})
	return pinned, err
}

func (s *Session) PinWindow(hwnd platform.HWND) error {
	defer s.track("pin window")()
	return s.withView(hwnd, platform.PinnedApps.PinView)
}

func (s *Session) UnpinWindow(hwnd platform.HWND) error {
	defer s.track("unpin window")()
	return s.withView(hwnd, platform.PinnedApps.UnpinView)
}

func (s *Session) withApp(hwnd platform.HWND, fn func(platform.PinnedApps, string) error) error {
	return s.withView(hwnd, func(p platform.PinnedApps, v platform.ApplicationView) error {
		app, err := v.AppUserModelID()
		if err != nil {
			return err
		}
		return fn(p, app)
	})
}

func (s *Session) IsAppPinned(hwnd platform.HWND) (bool, error) {
	defer s.track("is app pinned")()
	var pinned bool
	err := s.withApp(hwnd, func(p platform.PinnedApps, app string) error {
		var err error
		pinned, err = p.IsAppPinned(app)
		return err
	})
	return pinned, err
}

func (s *Session) PinApp(hwnd platform.HWND) error {
	defer s.track("pin app")()
	return s.withApp(hwnd, platform.PinnedApps.PinApp)
}

func (s *Session) UnpinApp(hwnd platform.HWND) error {
	defer s.track("unpin app")()
	return s.withApp(hwnd, platform.PinnedApps.UnpinApp)
}

// Register installs n with the notification service.
func (s *Session) Register(n platform.Notification) (platform.Cookie, error) {
	defer s.track("register")()
	svc, err := s.ns()
	if err != nil {
		return 0, err
	}
	return svc.Register(n)
}

// Unregister removes a registration made through this Session.
func (s *Session) Unregister(c platform.Cookie) error {
	defer s.track("unregister")()
	if !s.notify.Valid() {
		return vderr.New("unregister", vderr.ObjectNotConnected)
	}
	return s.notify.Get().Unregister(c)
}

// IsConnected probes the service. It is true when a desktop count comes
// back and is positive.
func (s *Session) IsConnected() bool {
	defer s.track("is connected")()
	n, err := s.count()
	return err == nil && n > 0
}

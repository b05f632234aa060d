// Package fakeshell is an in-memory virtual desktop shell for tests.
//
// A Shell holds the desktop list, windows and pin sets. Each NewConnector
// call returns an independent platform.Connector that counts overlapping calls
// made through it, so a test can prove that one thread never has two native
// calls in flight. Crash, Restart and DropRegistrations simulate the shell
// process going away; objects obtained before that fail with the same codes
// the real service returns.
package fakeshell

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
	"github.com/1broseidon/winvd/internal/vderr"
)

type deskState struct {
	id        desktop.ID
	name      string
	wallpaper string
	removed   bool
}

type window struct {
	hwnd   platform.HWND
	appID  string
	desk   *deskState
	pinned bool
}

type registration struct {
	cookie platform.Cookie
	sink   platform.Notification
}

type failure struct {
	op string
	n  int
	hr vderr.HRESULT
}

// Shell is the shared state behind every connector.
type Shell struct {
	mu       sync.Mutex
	desktops []*deskState
	current  *deskState
	windows  map[platform.HWND]*window
	nextHWND platform.HWND
	focused  platform.HWND
	apps     map[string]bool
	regs     map[platform.Cookie]*registration
	cookie   platform.Cookie
	gen      uint64
	down     bool
	failures []failure
	nulls    int
	delay    time.Duration

	live atomic.Int64

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a running shell with n desktops, the first one current. Close
// it when done.
func New(n int) *Shell {
	if n < 1 {
		n = 1
	}
	s := &Shell{
		windows:  make(map[platform.HWND]*window),
		nextHWND: 0x10000,
		apps:     make(map[string]bool),
		regs:     make(map[platform.Cookie]*registration),
		gen:      1,
		events:   make(chan func(), 1024),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		s.desktops = append(s.desktops, &deskState{id: newID()})
	}
	s.current = s.desktops[0]
	go s.dispatch()
	return s
}

func newID() desktop.ID {
	return desktop.MustParseID(uuid.NewString())
}

// dispatch delivers notifications in emission order on its own goroutine,
// the way the real shell calls back from another process.
func (s *Shell) dispatch() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.events:
			fn()
		}
	}
}

// Close stops notification delivery.
func (s *Shell) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// NewConnector returns a connector with its own occupancy counters.
func (s *Shell) NewConnector() *Connector {
	return &Connector{shell: s}
}

// SetDelay makes every native call hold the shell for d.
func (s *Shell) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// FailNext makes the next n calls fail with hr.
func (s *Shell) FailNext(n int, hr vderr.HRESULT) {
	s.FailOp("", n, hr)
}

// FailOp makes the next n calls to op fail with hr. An empty op matches any
// call.
func (s *Shell) FailOp(op string, n int, hr vderr.HRESULT) {
	s.mu.Lock()
	s.failures = append(s.failures, failure{op: op, n: n, hr: hr})
	s.mu.Unlock()
}

// NullNext makes the next n object-returning calls succeed with no object.
func (s *Shell) NullNext(n int) {
	s.mu.Lock()
	s.nulls += n
	s.mu.Unlock()
}

// Crash takes the service away. Every call fails with RPC-unavailable until
// Restart.
func (s *Shell) Crash() {
	s.mu.Lock()
	s.down = true
	s.gen++
	clear(s.regs)
	s.mu.Unlock()
}

// Restart brings the service back. Objects from before the restart are
// disconnected.
func (s *Shell) Restart() {
	s.mu.Lock()
	s.down = false
	s.gen++
	clear(s.regs)
	s.mu.Unlock()
}

// DropRegistrations forgets every callback and disconnects every object
// handed out so far, without an outage.
func (s *Shell) DropRegistrations() {
	s.Restart()
}

// Registrations returns the number of live callback registrations.
func (s *Shell) Registrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// LiveObjects returns the number of owned objects not yet released.
func (s *Shell) LiveObjects() int64 { return s.live.Load() }

// AddWindow creates a window for appID on desktop index. A negative index
// leaves the window on no desktop.
func (s *Shell) AddWindow(appID string, index int) platform.HWND {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHWND += 0x10
	w := &window{hwnd: s.nextHWND, appID: appID}
	if index >= 0 && index < len(s.desktops) {
		w.desk = s.desktops[index]
	}
	s.windows[w.hwnd] = w
	return w.hwnd
}

// FocusWindow makes hwnd the view in focus.
func (s *Shell) FocusWindow(hwnd platform.HWND) {
	s.mu.Lock()
	s.focused = hwnd
	s.mu.Unlock()
}

// IDs returns the desktop identifiers in order.
func (s *Shell) IDs() []desktop.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]desktop.ID, len(s.desktops))
	for i, d := range s.desktops {
		out[i] = d.id
	}
	return out
}

// CurrentIndex returns the index of the current desktop.
func (s *Shell) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(s.current)
}

// Name returns the name of desktop index.
func (s *Shell) Name(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desktops[index].name
}

// WindowIndex returns the index of the desktop hwnd is on, or -1.
func (s *Shell) WindowIndex(hwnd platform.HWND) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[hwnd]
	if !ok || w.desk == nil {
		return -1
	}
	return s.indexOf(w.desk)
}

func (s *Shell) indexOf(d *deskState) int {
	for i, x := range s.desktops {
		if x == d {
			return i
		}
	}
	return -1
}

func (s *Shell) find(id desktop.ID) *deskState {
	for _, d := range s.desktops {
		if d.id == id {
			return d
		}
	}
	return nil
}

// takeFailure consumes a matching injected failure. Callers hold mu.
func (s *Shell) takeFailure(op string) vderr.HRESULT {
	for i := range s.failures {
		f := &s.failures[i]
		if f.n <= 0 || (f.op != "" && f.op != op) {
			continue
		}
		f.n--
		hr := f.hr
		if f.n == 0 {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
		}
		return hr
	}
	return vderr.SOK
}

// emit queues fn for every current registration. Callers hold mu.
func (s *Shell) emit(fn func(n platform.Notification)) {
	for _, r := range s.regs {
		sink := r.sink
		select {
		case s.events <- func() { fn(sink) }:
		case <-s.quit:
			return
		}
	}
}

// snapshot is the borrowed form passed to callbacks.
func (d *deskState) snapshot() platform.VirtualDesktop {
	return &snapDesktop{id: d.id, name: d.name, wallpaper: d.wallpaper}
}

func (w *window) snapshot() platform.ApplicationView {
	v := &snapView{hwnd: w.hwnd, appID: w.appID}
	if w.desk != nil {
		v.desk = w.desk.id
	}
	return v
}

// Connector implements platform.Connector against a Shell.
type Connector struct {
	shell *Shell

	attaches    atomic.Int32
	priority    atomic.Int32
	level       atomic.Int32
	prioritySet atomic.Bool
	connects    atomic.Int32
	calls       atomic.Int64
	occupancy   atomic.Int32
	peak        atomic.Int32
	overlaps    atomic.Int32
}

var _ platform.Connector = (*Connector)(nil)

func (c *Connector) Attach() (func(), error) {
	c.attaches.Add(1)
	return func() {}, nil
}

func (c *Connector) SetPriority(p platform.Priority) error {
	c.priority.Store(int32(p))
	c.level.Store(p.Level())
	c.prioritySet.Store(true)
	return nil
}

func (c *Connector) Connect() (platform.ServiceProvider, error) {
	done, gen, err := c.enter("connect", 0)
	defer done()
	if err != nil {
		return nil, err
	}
	c.connects.Add(1)
	return &provider{base: c.owned(gen)}, nil
}

func (c *Connector) NewPump(interval time.Duration) (platform.Pump, error) {
	return platform.NewTickerPump(interval), nil
}

// Attaches returns how many threads attached through c.
func (c *Connector) Attaches() int { return int(c.attaches.Load()) }

// Priority returns the last priority set through c.
func (c *Connector) Priority() platform.Priority { return platform.Priority(c.priority.Load()) }

// ThreadLevel returns the native priority level last set through c, and
// whether SetPriority was called at all.
func (c *Connector) ThreadLevel() (int32, bool) { return c.level.Load(), c.prioritySet.Load() }

// Connects returns how many providers c has created.
func (c *Connector) Connects() int { return int(c.connects.Load()) }

// Calls returns the number of native calls made through c.
func (c *Connector) Calls() int64 { return c.calls.Load() }

// Overlaps returns how many calls started while another was in flight.
func (c *Connector) Overlaps() int { return int(c.overlaps.Load()) }

// PeakOccupancy returns the largest number of simultaneous calls seen.
func (c *Connector) PeakOccupancy() int { return int(c.peak.Load()) }

// enter begins a native call. It returns with the shell locked; done unlocks
// it. gen 0 means the call does not belong to an existing object.
func (c *Connector) enter(op string, gen uint64) (done func(), cur uint64, err error) {
	n := c.occupancy.Add(1)
	if n > 1 {
		c.overlaps.Add(1)
	}
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	c.calls.Add(1)

	s := c.shell
	s.mu.Lock()
	done = func() {
		s.mu.Unlock()
		c.occupancy.Add(-1)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	switch {
	case s.down:
		return done, s.gen, vderr.FromCode(op, vderr.CodeRPCUnavailable)
	case gen != 0 && gen != s.gen:
		return done, s.gen, vderr.FromCode(op, vderr.CodeObjectNotConnected)
	}
	if hr := s.takeFailure(op); hr.Failed() {
		return done, s.gen, vderr.FromCode(op, hr)
	}
	return done, s.gen, nil
}

// null consumes one injected null result. Callers hold mu.
func (c *Connector) null(op string) error {
	s := c.shell
	if s.nulls > 0 {
		s.nulls--
		return vderr.New(op, vderr.AllocatedNullPtr)
	}
	return nil
}

func (c *Connector) owned(gen uint64) base {
	c.shell.live.Add(1)
	return base{c: c, gen: gen}
}

type base struct {
	c        *Connector
	gen      uint64
	released bool
}

func (b *base) Release() {
	if !b.released {
		b.released = true
		b.c.shell.live.Add(-1)
	}
}

func (b *base) enter(op string) (func(), error) {
	done, _, err := b.c.enter(op, b.gen)
	return done, err
}

func (b *base) shell() *Shell { return b.c.shell }

type provider struct {
	base
}

func (p *provider) get(op string) (base, error) {
	done, err := p.enter(op)
	defer done()
	if err != nil {
		return base{}, err
	}
	if err := p.c.null(op); err != nil {
		return base{}, err
	}
	return p.c.owned(p.gen), nil
}

func (p *provider) Manager() (platform.Manager, error) {
	b, err := p.get("query manager")
	if err != nil {
		return nil, err
	}
	return &manager{b}, nil
}

func (p *provider) ManagerInternal() (platform.ManagerInternal, error) {
	b, err := p.get("query manager internal")
	if err != nil {
		return nil, err
	}
	return &managerInternal{b}, nil
}

func (p *provider) NotificationService() (platform.NotificationService, error) {
	b, err := p.get("query notification service")
	if err != nil {
		return nil, err
	}
	return &notifications{b}, nil
}

func (p *provider) PinnedApps() (platform.PinnedApps, error) {
	b, err := p.get("query pinned apps")
	if err != nil {
		return nil, err
	}
	return &pinned{b}, nil
}

func (p *provider) ViewCollection() (platform.ViewCollection, error) {
	b, err := p.get("query view collection")
	if err != nil {
		return nil, err
	}
	return &views{b}, nil
}

type managerInternal struct {
	base
}

func (m *managerInternal) wrap(d *deskState) *fakeDesktop {
	return &fakeDesktop{base: m.c.owned(m.gen), st: d}
}

// state unwraps a desktop argument. Callers hold mu.
func (m *managerInternal) state(op string, d platform.VirtualDesktop) (*deskState, error) {
	fd, ok := d.(*fakeDesktop)
	if !ok || fd == nil {
		return nil, vderr.FromCode(op, vderr.CodePointer)
	}
	if fd.gen != m.gen {
		return nil, vderr.FromCode(op, vderr.CodeObjectNotConnected)
	}
	if fd.st.removed {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	return fd.st, nil
}

func (m *managerInternal) Count() (uint32, error) {
	done, err := m.enter("count")
	defer done()
	if err != nil {
		return 0, err
	}
	return uint32(len(m.shell().desktops)), nil
}

func (m *managerInternal) Desktops() ([]platform.VirtualDesktop, error) {
	const op = "desktops"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	if err := m.c.null(op); err != nil {
		return nil, err
	}
	out := make([]platform.VirtualDesktop, 0, len(m.shell().desktops))
	for _, d := range m.shell().desktops {
		out = append(out, m.wrap(d))
	}
	return out, nil
}

func (m *managerInternal) Current() (platform.VirtualDesktop, error) {
	const op = "current"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	if err := m.c.null(op); err != nil {
		return nil, err
	}
	return m.wrap(m.shell().current), nil
}

func (m *managerInternal) Adjacent(d platform.VirtualDesktop, dir platform.Direction) (platform.VirtualDesktop, error) {
	const op = "adjacent"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	st, err := m.state(op, d)
	if err != nil {
		return nil, err
	}
	s := m.shell()
	i := s.indexOf(st)
	switch dir {
	case platform.Left:
		i--
	case platform.Right:
		i++
	default:
		return nil, vderr.FromCode(op, vderr.CodeInvalidArg)
	}
	if i < 0 || i >= len(s.desktops) {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	return m.wrap(s.desktops[i]), nil
}

func (m *managerInternal) Switch(d platform.VirtualDesktop) error {
	const op = "switch"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	s := m.shell()
	if old := s.current; old != st {
		s.current = st
		o, n := old.snapshot(), st.snapshot()
		s.emit(func(sink platform.Notification) { sink.CurrentChanged(o, n) })
	}
	return nil
}

func (m *managerInternal) Create() (platform.VirtualDesktop, error) {
	const op = "create"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	if err := m.c.null(op); err != nil {
		return nil, err
	}
	s := m.shell()
	st := &deskState{id: newID()}
	s.desktops = append(s.desktops, st)
	snap := st.snapshot()
	s.emit(func(sink platform.Notification) { sink.Created(snap) })
	return m.wrap(st), nil
}

func (m *managerInternal) MoveDesktop(d platform.VirtualDesktop, index uint32) error {
	const op = "move desktop"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	s := m.shell()
	if int(index) >= len(s.desktops) {
		return vderr.FromCode(op, vderr.CodeInvalidArg)
	}
	from := s.indexOf(st)
	if from == int(index) {
		return nil
	}
	rest := append(s.desktops[:from:from], s.desktops[from+1:]...)
	moved := make([]*deskState, 0, len(s.desktops))
	moved = append(moved, rest[:index]...)
	moved = append(moved, st)
	moved = append(moved, rest[index:]...)
	s.desktops = moved
	snap := st.snapshot()
	s.emit(func(sink platform.Notification) { sink.Moved(snap, int64(from), int64(index)) })
	return nil
}

func (m *managerInternal) Remove(d, fallback platform.VirtualDesktop) error {
	const op = "remove"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	fb, err := m.state(op, fallback)
	if err != nil {
		return err
	}
	s := m.shell()
	if st == fb || len(s.desktops) < 2 {
		return vderr.FromCode(op, vderr.CodeInvalidArg)
	}
	gone, to := st.snapshot(), fb.snapshot()
	s.emit(func(sink platform.Notification) { sink.DestroyBegin(gone, to) })
	for _, w := range s.windows {
		if w.desk == st {
			w.desk = fb
		}
	}
	if s.current == st {
		s.current = fb
		s.emit(func(sink platform.Notification) { sink.CurrentChanged(gone, to) })
	}
	i := s.indexOf(st)
	s.desktops = append(s.desktops[:i], s.desktops[i+1:]...)
	st.removed = true
	s.emit(func(sink platform.Notification) { sink.Destroyed(gone, to) })
	return nil
}

func (m *managerInternal) Find(id desktop.ID) (platform.VirtualDesktop, error) {
	const op = "find"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	st := m.shell().find(id)
	if st == nil {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	if err := m.c.null(op); err != nil {
		return nil, err
	}
	return m.wrap(st), nil
}

func (m *managerInternal) MoveView(view platform.ApplicationView, d platform.VirtualDesktop) error {
	const op = "move view"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	w, err := windowOf(op, m.shell(), m.gen, view)
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	m.shell().moveWindow(w, st)
	return nil
}

func (m *managerInternal) SetName(d platform.VirtualDesktop, name string) error {
	const op = "set name"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	st.name = name
	snap := st.snapshot()
	m.shell().emit(func(sink platform.Notification) { sink.NameChanged(snap, name) })
	return nil
}

func (m *managerInternal) SetWallpaper(d platform.VirtualDesktop, path string) error {
	const op = "set wallpaper"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	st, err := m.state(op, d)
	if err != nil {
		return err
	}
	m.shell().setWallpaper(st, path)
	return nil
}

func (m *managerInternal) SetWallpaperForAll(path string) error {
	done, err := m.enter("set wallpaper for all")
	defer done()
	if err != nil {
		return err
	}
	for _, st := range m.shell().desktops {
		m.shell().setWallpaper(st, path)
	}
	return nil
}

func (s *Shell) setWallpaper(st *deskState, path string) {
	st.wallpaper = path
	snap := st.snapshot()
	s.emit(func(sink platform.Notification) { sink.WallpaperChanged(snap, path) })
}

func (s *Shell) moveWindow(w *window, st *deskState) {
	if w.desk == st {
		return
	}
	w.desk = st
	snap := w.snapshot()
	s.emit(func(sink platform.Notification) { sink.ViewChanged(snap) })
}

func (s *Shell) visible(w *window, st *deskState) bool {
	return w.desk == st || w.pinned || s.apps[w.appID]
}

type fakeDesktop struct {
	base
	st *deskState
}

func (d *fakeDesktop) ID() (desktop.ID, error) {
	done, err := d.enter("desktop id")
	defer done()
	if err != nil {
		return desktop.NilID, err
	}
	return d.st.id, nil
}

func (d *fakeDesktop) Name() (string, error) {
	done, err := d.enter("desktop name")
	defer done()
	if err != nil {
		return "", err
	}
	if d.st.removed {
		return "", vderr.FromCode("desktop name", vderr.CodeElementNotFound)
	}
	return d.st.name, nil
}

func (d *fakeDesktop) Wallpaper() (string, error) {
	done, err := d.enter("desktop wallpaper")
	defer done()
	if err != nil {
		return "", err
	}
	if d.st.removed {
		return "", vderr.FromCode("desktop wallpaper", vderr.CodeElementNotFound)
	}
	return d.st.wallpaper, nil
}

func (d *fakeDesktop) IsViewVisible(view platform.ApplicationView) (bool, error) {
	const op = "is view visible"
	done, err := d.enter(op)
	defer done()
	if err != nil {
		return false, err
	}
	w, err := windowOf(op, d.shell(), d.gen, view)
	if err != nil {
		return false, err
	}
	return d.shell().visible(w, d.st), nil
}

type manager struct {
	base
}

func (m *manager) window(op string, hwnd platform.HWND) (*window, error) {
	w, ok := m.shell().windows[hwnd]
	if !ok {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	return w, nil
}

func (m *manager) IsWindowOnCurrentDesktop(hwnd platform.HWND) (bool, error) {
	const op = "is window on current desktop"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return false, err
	}
	w, err := m.window(op, hwnd)
	if err != nil {
		return false, err
	}
	return m.shell().visible(w, m.shell().current), nil
}

func (m *manager) WindowDesktopID(hwnd platform.HWND) (desktop.ID, error) {
	const op = "window desktop id"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return desktop.NilID, err
	}
	w, err := m.window(op, hwnd)
	if err != nil {
		return desktop.NilID, err
	}
	if w.desk == nil {
		return desktop.NilID, nil
	}
	return w.desk.id, nil
}

func (m *manager) MoveWindowToDesktop(hwnd platform.HWND, id desktop.ID) error {
	const op = "move window to desktop"
	done, err := m.enter(op)
	defer done()
	if err != nil {
		return err
	}
	w, err := m.window(op, hwnd)
	if err != nil {
		return err
	}
	st := m.shell().find(id)
	if st == nil {
		return vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	m.shell().moveWindow(w, st)
	return nil
}

type views struct {
	base
}

func (c *views) ViewForWindow(hwnd platform.HWND) (platform.ApplicationView, error) {
	const op = "view for window"
	done, err := c.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	w, ok := c.shell().windows[hwnd]
	if !ok {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	if err := c.c.null(op); err != nil {
		return nil, err
	}
	return &view{base: c.c.owned(c.gen), w: w}, nil
}

func (c *views) ViewInFocus() (platform.ApplicationView, error) {
	const op = "view in focus"
	done, err := c.enter(op)
	defer done()
	if err != nil {
		return nil, err
	}
	w, ok := c.shell().windows[c.shell().focused]
	if !ok {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	return &view{base: c.c.owned(c.gen), w: w}, nil
}

type view struct {
	base
	w *window
}

func (v *view) Window() (platform.HWND, error) {
	done, err := v.enter("view window")
	defer done()
	if err != nil {
		return 0, err
	}
	return v.w.hwnd, nil
}

func (v *view) AppUserModelID() (string, error) {
	done, err := v.enter("view app id")
	defer done()
	if err != nil {
		return "", err
	}
	return v.w.appID, nil
}

func (v *view) DesktopID() (desktop.ID, error) {
	done, err := v.enter("view desktop id")
	defer done()
	if err != nil {
		return desktop.NilID, err
	}
	if v.w.desk == nil {
		return desktop.NilID, nil
	}
	return v.w.desk.id, nil
}

// windowOf unwraps a view argument. Callers hold mu.
func windowOf(op string, s *Shell, gen uint64, v platform.ApplicationView) (*window, error) {
	fv, ok := v.(*view)
	if !ok || fv == nil {
		return nil, vderr.FromCode(op, vderr.CodePointer)
	}
	if fv.gen != gen {
		return nil, vderr.FromCode(op, vderr.CodeObjectNotConnected)
	}
	if _, ok := s.windows[fv.w.hwnd]; !ok {
		return nil, vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	return fv.w, nil
}

type pinned struct {
	base
}

func (p *pinned) IsAppPinned(appID string) (bool, error) {
	done, err := p.enter("is app pinned")
	defer done()
	if err != nil {
		return false, err
	}
	return p.shell().apps[appID], nil
}

func (p *pinned) setApp(op, appID string, on bool) error {
	done, err := p.enter(op)
	defer done()
	if err != nil {
		return err
	}
	if appID == "" {
		return vderr.FromCode(op, vderr.CodeInvalidArg)
	}
	if on {
		p.shell().apps[appID] = true
	} else {
		delete(p.shell().apps, appID)
	}
	return nil
}

func (p *pinned) PinApp(appID string) error   { return p.setApp("pin app", appID, true) }
func (p *pinned) UnpinApp(appID string) error { return p.setApp("unpin app", appID, false) }

func (p *pinned) IsViewPinned(v platform.ApplicationView) (bool, error) {
	const op = "is view pinned"
	done, err := p.enter(op)
	defer done()
	if err != nil {
		return false, err
	}
	w, err := windowOf(op, p.shell(), p.gen, v)
	if err != nil {
		return false, err
	}
	return w.pinned, nil
}

func (p *pinned) setView(op string, v platform.ApplicationView, on bool) error {
	done, err := p.enter(op)
	defer done()
	if err != nil {
		return err
	}
	w, err := windowOf(op, p.shell(), p.gen, v)
	if err != nil {
		return err
	}
	if w.pinned != on {
		w.pinned = on
		snap := w.snapshot()
		p.shell().emit(func(sink platform.Notification) { sink.ViewChanged(snap) })
	}
	return nil
}

func (p *pinned) PinView(v platform.ApplicationView) error   { return p.setView("pin view", v, true) }
func (p *pinned) UnpinView(v platform.ApplicationView) error { return p.setView("unpin view", v, false) }

type notifications struct {
	base
}

func (n *notifications) Register(sink platform.Notification) (platform.Cookie, error) {
	done, err := n.enter("register")
	defer done()
	if err != nil {
		return 0, err
	}
	s := n.shell()
	s.cookie++
	s.regs[s.cookie] = &registration{cookie: s.cookie, sink: sink}
	return s.cookie, nil
}

func (n *notifications) Unregister(c platform.Cookie) error {
	const op = "unregister"
	done, err := n.enter(op)
	defer done()
	if err != nil {
		return err
	}
	s := n.shell()
	if _, ok := s.regs[c]; !ok {
		return vderr.FromCode(op, vderr.CodeElementNotFound)
	}
	delete(s.regs, c)
	return nil
}

// snapDesktop and snapView are callback arguments. They answer from the
// state captured at emission and never touch the shell.
type snapDesktop struct {
	id        desktop.ID
	name      string
	wallpaper string
}

func (d *snapDesktop) Release()                   {}
func (d *snapDesktop) ID() (desktop.ID, error)    { return d.id, nil }
func (d *snapDesktop) Name() (string, error)      { return d.name, nil }
func (d *snapDesktop) Wallpaper() (string, error) { return d.wallpaper, nil }

func (d *snapDesktop) IsViewVisible(platform.ApplicationView) (bool, error) {
	return false, vderr.FromCode("is view visible", vderr.CodeInvalidArg)
}

type snapView struct {
	hwnd  platform.HWND
	appID string
	desk  desktop.ID
}

func (v *snapView) Release()                        {}
func (v *snapView) Window() (platform.HWND, error)  { return v.hwnd, nil }
func (v *snapView) AppUserModelID() (string, error) { return v.appID, nil }
func (v *snapView) DesktopID() (desktop.ID, error)  { return v.desk, nil }

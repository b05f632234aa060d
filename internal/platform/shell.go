// Package platform is the boundary to the shell's virtual desktop service.
//
// The interfaces here mirror the private service objects one to one. On
// Windows they are backed by COM vtable calls (see the *_windows.go files); on
// other systems Connect reports the service as absent. Tests substitute the
// in-memory shell from platform/fakeshell.
//
// None of these objects are safe for concurrent use. A ServiceProvider and
// everything obtained from it belong to the OS thread that called Connect.
package platform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/1broseidon/winvd/internal/desktop"
)

// HWND is a native window handle.
type HWND uintptr

// String formats h the way Spy++ and the journal show it.
func (h HWND) String() string { return fmt.Sprintf("0x%X", uintptr(h)) }

// ParseHWND accepts a decimal or 0x-prefixed hexadecimal handle.
func ParseHWND(s string) (HWND, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	return HWND(v), nil
}

// Cookie identifies a notification registration.
type Cookie uint32

// Direction selects a neighbour in AdjacentDesktop.
type Direction uint32

const (
	Left  Direction = 3
	Right Direction = 4
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Priority is a thread scheduling priority. The zero value is
// PriorityTimeCritical, which the actor thread runs at unless configured
// otherwise.
type Priority int

const (
	PriorityTimeCritical Priority = iota
	PriorityHighest
	PriorityAboveNormal
	PriorityNormal
)

// Level returns the native thread priority level for p.
func (p Priority) Level() int32 {
	switch p {
	case PriorityHighest:
		return 2
	case PriorityAboveNormal:
		return 1
	case PriorityNormal:
		return 0
	default:
		return 15
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityTimeCritical:
		return "time_critical"
	case PriorityHighest:
		return "highest"
	case PriorityAboveNormal:
		return "above_normal"
	case PriorityNormal:
		return "normal"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// ParsePriority maps config names to priorities. The empty string is the
// default, time_critical.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "normal":
		return PriorityNormal, true
	case "above_normal":
		return PriorityAboveNormal, true
	case "highest":
		return PriorityHighest, true
	case "time_critical", "":
		return PriorityTimeCritical, true
	default:
		return PriorityNormal, false
	}
}

// Object is any native reference that must be released by its owner.
type Object interface {
	Release()
}

// Connector opens sessions against the shell service. Attach, SetPriority,
// Connect and NewPump must all be called from the same locked OS thread.
type Connector interface {
	// Attach prepares the calling thread for native calls. The returned
	// function undoes it and must run on the same thread.
	Attach() (detach func(), err error)
	SetPriority(p Priority) error
	// Connect creates the root service provider. The caller owns the result.
	Connect() (ServiceProvider, error)
	// NewPump creates the calling thread's wait loop with the given tick.
	NewPump(interval time.Duration) (Pump, error)
}

// Pump is a thread-affine wait loop. Notification callbacks are delivered
// while the owning thread is blocked in Wait.
type Pump interface {
	// Wait blocks until the next tick (true) or a quit request (false).
	Wait() bool
	// Quit may be called from any goroutine, any number of times.
	Quit()
	Close()
}

// ServiceProvider is the shell's root object. Every getter returns a new
// reference owned by the caller.
type ServiceProvider interface {
	Object
	Manager() (Manager, error)
	ManagerInternal() (ManagerInternal, error)
	NotificationService() (NotificationService, error)
	PinnedApps() (PinnedApps, error)
	ViewCollection() (ViewCollection, error)
}

// Manager is the documented window-to-desktop manager.
type Manager interface {
	Object
	IsWindowOnCurrentDesktop(hwnd HWND) (bool, error)
	WindowDesktopID(hwnd HWND) (desktop.ID, error)
	MoveWindowToDesktop(hwnd HWND, id desktop.ID) error
}

// ManagerInternal is the private desktop manager. Desktops returned here are
// owned by the caller; desktops passed in are borrowed for the call.
type ManagerInternal interface {
	Object
	Count() (uint32, error)
	Desktops() ([]VirtualDesktop, error)
	Current() (VirtualDesktop, error)
	Adjacent(d VirtualDesktop, dir Direction) (VirtualDesktop, error)
	Switch(d VirtualDesktop) error
	Create() (VirtualDesktop, error)
	MoveDesktop(d VirtualDesktop, index uint32) error
	Remove(d, fallback VirtualDesktop) error
	Find(id desktop.ID) (VirtualDesktop, error)
	MoveView(view ApplicationView, d VirtualDesktop) error
	SetName(d VirtualDesktop, name string) error
	SetWallpaper(d VirtualDesktop, path string) error
	SetWallpaperForAll(path string) error
}

// VirtualDesktop is one desktop object.
type VirtualDesktop interface {
	Object
	ID() (desktop.ID, error)
	Name() (string, error)
	Wallpaper() (string, error)
	IsViewVisible(view ApplicationView) (bool, error)
}

// ApplicationView is the shell's per-window view object.
type ApplicationView interface {
	Object
	Window() (HWND, error)
	AppUserModelID() (string, error)
	DesktopID() (desktop.ID, error)
}

// ViewCollection maps windows to views.
type ViewCollection interface {
	Object
	ViewForWindow(hwnd HWND) (ApplicationView, error)
	ViewInFocus() (ApplicationView, error)
}

// PinnedApps is the registry of views and applications shown on all desktops.
type PinnedApps interface {
	Object
	IsAppPinned(appID string) (bool, error)
	PinApp(appID string) error
	UnpinApp(appID string) error
	IsViewPinned(view ApplicationView) (bool, error)
	PinView(view ApplicationView) error
	UnpinView(view ApplicationView) error
}

// NotificationService accepts callback registrations.
type NotificationService interface {
	Object
	Register(n Notification) (Cookie, error)
	Unregister(c Cookie) error
}

// Notification is the callback capability set, in native method order. Every
// argument is borrowed: it is valid only for the duration of the call and
// must not be released. Implementations must not panic or block.
type Notification interface {
	Created(d VirtualDesktop)
	DestroyBegin(destroyed, fallback VirtualDesktop)
	DestroyFailed(destroyed, fallback VirtualDesktop)
	Destroyed(destroyed, fallback VirtualDesktop)
	IsPerMonitorChanged(perMonitor bool)
	Moved(d VirtualDesktop, oldIndex, newIndex int64)
	NameChanged(d VirtualDesktop, name string)
	ViewChanged(view ApplicationView)
	CurrentChanged(old, new VirtualDesktop)
	WallpaperChanged(d VirtualDesktop, path string)
}

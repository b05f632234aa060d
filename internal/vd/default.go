package vd

import (
	"sync"

	"github.com/1broseidon/winvd/internal/actor"
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/listener"
	"github.com/1broseidon/winvd/internal/platform"
)

var (
	defaultMu  sync.Mutex
	defaultCfg Config
	defaultSvc *Service
)

// Configure sets the configuration used when the default service is next
// started. It does not affect a running default service.
func Configure(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg = cfg
}

// Default returns the process-wide service, starting it on first use.
func Default() (*Service, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSvc != nil {
		return defaultSvc, nil
	}
	s, err := New(defaultCfg)
	if err != nil {
		return nil, err
	}
	defaultSvc = s
	return s, nil
}

// Shutdown stops the default service. A later call starts a new one.
func Shutdown() {
	defaultMu.Lock()
	s := defaultSvc
	defaultSvc = nil
	defaultMu.Unlock()
	if s != nil {
		s.Close()
	}
}

func with[T any](fn func(*Service) (T, error)) (T, error) {
	s, err := Default()
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(s)
}

func do(fn func(*Service) error) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return fn(s)
}

func Count() (uint32, error)                { return with((*Service).Count) }
func Desktops() ([]desktop.Ref, error)      { return with((*Service).Desktops) }
func Current() (desktop.Ref, error)         { return with((*Service).Current) }
func Describe() ([]DesktopInfo, error)      { return with((*Service).Describe) }
func Create() (desktop.Ref, error)          { return with((*Service).Create) }
func FocusedWindow() (platform.HWND, error) { return with((*Service).FocusedWindow) }
func CurrentIndex() (uint32, error)         { return with((*Service).CurrentIndex) }

func Resolve(ref desktop.Ref) (desktop.Ref, error) {
	return with(func(s *Service) (desktop.Ref, error) { return s.Resolve(ref) })
}

func IndexOf(ref desktop.Ref) (uint32, error) {
	return with(func(s *Service) (uint32, error) { return s.IndexOf(ref) })
}

func IDOf(ref desktop.Ref) (desktop.ID, error) {
	return with(func(s *Service) (desktop.ID, error) { return s.IDOf(ref) })
}

func SameDesktop(a, b desktop.Ref) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.SameDesktop(a, b) })
}

func Switch(ref desktop.Ref) error {
	return do(func(s *Service) error { return s.Switch(ref) })
}

func Remove(ref, fallback desktop.Ref) error {
	return do(func(s *Service) error { return s.Remove(ref, fallback) })
}

func Name(ref desktop.Ref) (string, error) {
	return with(func(s *Service) (string, error) { return s.Name(ref) })
}

func SetName(ref desktop.Ref, name string) error {
	return do(func(s *Service) error { return s.SetName(ref, name) })
}

func Wallpaper(ref desktop.Ref) (string, error) {
	return with(func(s *Service) (string, error) { return s.Wallpaper(ref) })
}

func SetWallpaper(ref desktop.Ref, path string) error {
	return do(func(s *Service) error { return s.SetWallpaper(ref, path) })
}

func SetWallpaperForAll(path string) error {
	return do(func(s *Service) error { return s.SetWallpaperForAll(path) })
}

func MoveDesktop(ref desktop.Ref, index uint32) error {
	return do(func(s *Service) error { return s.MoveDesktop(ref, index) })
}

func Adjacent(ref desktop.Ref, dir platform.Direction) (desktop.Ref, error) {
	return with(func(s *Service) (desktop.Ref, error) { return s.Adjacent(ref, dir) })
}

func WindowDesktop(hwnd platform.HWND) (desktop.Ref, error) {
	return with(func(s *Service) (desktop.Ref, error) { return s.WindowDesktop(hwnd) })
}

func IsWindowOnCurrent(hwnd platform.HWND) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.IsWindowOnCurrent(hwnd) })
}

func IsWindowOnDesktop(hwnd platform.HWND, ref desktop.Ref) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.IsWindowOnDesktop(hwnd, ref) })
}

func MoveWindow(hwnd platform.HWND, ref desktop.Ref) error {
	return do(func(s *Service) error { return s.MoveWindow(hwnd, ref) })
}

func IsWindowPinned(hwnd platform.HWND) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.IsWindowPinned(hwnd) })
}

func PinWindow(hwnd platform.HWND) error {
	return do(func(s *Service) error { return s.PinWindow(hwnd) })
}

func UnpinWindow(hwnd platform.HWND) error {
	return do(func(s *Service) error { return s.UnpinWindow(hwnd) })
}

func IsAppPinned(hwnd platform.HWND) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.IsAppPinned(hwnd) })
}

func PinApp(hwnd platform.HWND) error {
	return do(func(s *Service) error { return s.PinApp(hwnd) })
}

func UnpinApp(hwnd platform.HWND) error {
	return do(func(s *Service) error { return s.UnpinApp(hwnd) })
}

func DesktopIDAt(n uint32) (desktop.ID, error) {
	return with(func(s *Service) (desktop.ID, error) { return s.DesktopIDAt(n) })
}

func IndexOfID(id desktop.ID) (uint32, error) {
	return with(func(s *Service) (uint32, error) { return s.IndexOfID(id) })
}

func WindowDesktopIndex(hwnd platform.HWND) (uint32, error) {
	return with(func(s *Service) (uint32, error) { return s.WindowDesktopIndex(hwnd) })
}

func MoveWindowToIndex(hwnd platform.HWND, n uint32) error {
	return do(func(s *Service) error { return s.MoveWindowToIndex(hwnd, n) })
}

func IsWindowOnIndex(hwnd platform.HWND, n uint32) (bool, error) {
	return with(func(s *Service) (bool, error) { return s.IsWindowOnIndex(hwnd, n) })
}

func SwitchToIndex(n uint32) error {
	return do(func(s *Service) error { return s.SwitchToIndex(n) })
}

func NameAt(n uint32) (string, error) {
	return with(func(s *Service) (string, error) { return s.NameAt(n) })
}

func SetNameAt(n uint32, name string) error {
	return do(func(s *Service) error { return s.SetNameAt(n, name) })
}

// Listen starts a listener with the default service's settings.
func Listen(sink listener.Sink) (*listener.Handle, error) {
	return with(func(s *Service) (*listener.Handle, error) { return s.Listen(sink) })
}

// Stats returns the default service's counters, starting it if needed.
func Stats() (actor.Stats, error) {
	return with(func(s *Service) (actor.Stats, error) { return s.Stats(), nil })
}

package vd

import (
	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/platform"
)

// The helpers below address desktops by position only, for scripts and
// hotkey tools that think in desktop numbers.

func (s *Service) CurrentIndex() (uint32, error) {
	ref, err := s.Current()
	if err != nil {
		return 0, err
	}
	i, _ := ref.Index()
	return i, nil
}

func (s *Service) DesktopIDAt(n uint32) (desktop.ID, error) {
	return s.IDOf(desktop.Index(n))
}

func (s *Service) IndexOfID(id desktop.ID) (uint32, error) {
	return s.IndexOf(desktop.WithID(id))
}

func (s *Service) WindowDesktopIndex(hwnd platform.HWND) (uint32, error) {
	ref, err := s.WindowDesktop(hwnd)
	if err != nil {
		return 0, err
	}
	return s.IndexOf(ref)
}

func (s *Service) MoveWindowToIndex(hwnd platform.HWND, n uint32) error {
	return s.MoveWindow(hwnd, desktop.Index(n))
}

func (s *Service) IsWindowOnIndex(hwnd platform.HWND, n uint32) (bool, error) {
	return s.IsWindowOnDesktop(hwnd, desktop.Index(n))
}

func (s *Service) SwitchToIndex(n uint32) error {
	return s.Switch(desktop.Index(n))
}

func (s *Service) NameAt(n uint32) (string, error) {
	return s.Name(desktop.Index(n))
}

func (s *Service) SetNameAt(n uint32, name string) error {
	return s.SetName(desktop.Index(n), name)
}

//go:build windows

package platform

import (
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/vderr"
)

const (
	slotQueryService = 3

	slotArrayCount = 3
	slotArrayAt    = 4

	slotIsWindowOnCurrent = 3
	slotWindowDesktopID   = 4
	slotMoveWindow        = 5

	slotViewThumbnailWindow = 9
	slotViewAppUserModelID  = 17
	slotViewDesktopID       = 25

	slotViewForHwnd = 6
	slotViewInFocus = 9

	slotRegister   = 3
	slotUnregister = 4

	slotIsAppPinned  = 3
	slotPinApp       = 4
	slotUnpinApp     = 5
	slotIsViewPinned = 6
	slotPinView      = 7
	slotUnpinView    = 8
)

var iidObjectArray = ole.NewGUID("{92CA9DCD-5622-4BBA-A805-5E9F541BD8C9}")

type providerObject struct {
	comObject
	layout *layout
}

func (p *providerObject) query(op string, service, iid *ole.GUID) (comObject, error) {
	return p.queryOut(op, slotQueryService,
		uintptr(unsafe.Pointer(service)),
		uintptr(unsafe.Pointer(iid)))
}

func (p *providerObject) Manager() (Manager, error) {
	o, err := p.query("query manager", iidManager, iidManager)
	if err != nil {
		return nil, err
	}
	return &managerObject{o}, nil
}

func (p *providerObject) ManagerInternal() (ManagerInternal, error) {
	o, err := p.query("query manager internal", clsidManagerInternal, p.layout.iidInternal)
	if err != nil {
		return nil, err
	}
	return &internalObject{comObject: o, layout: p.layout}, nil
}

func (p *providerObject) NotificationService() (NotificationService, error) {
	o, err := p.query("query notification service", clsidVirtualNotificationServer, iidNotifService)
	if err != nil {
		return nil, err
	}
	return &notifServiceObject{comObject: o, layout: p.layout, callbacks: make(map[Cookie]*callback)}, nil
}

func (p *providerObject) PinnedApps() (PinnedApps, error) {
	o, err := p.query("query pinned apps", clsidPinnedApps, iidPinnedApps)
	if err != nil {
		return nil, err
	}
	return &pinnedObject{o}, nil
}

func (p *providerObject) ViewCollection() (ViewCollection, error) {
	o, err := p.query("query view collection", iidViewCollection, iidViewCollection)
	if err != nil {
		return nil, err
	}
	return &viewsObject{o}, nil
}

type managerObject struct {
	comObject
}

func (m *managerObject) IsWindowOnCurrentDesktop(hwnd HWND) (bool, error) {
	var on int32
	err := m.call("is window on current desktop", slotIsWindowOnCurrent,
		uintptr(hwnd), uintptr(unsafe.Pointer(&on)))
	return on != 0, err
}

func (m *managerObject) WindowDesktopID(hwnd HWND) (desktop.ID, error) {
	var id desktop.ID
	err := m.call("window desktop id", slotWindowDesktopID,
		uintptr(hwnd), guidPtr(&id))
	return id, err
}

func (m *managerObject) MoveWindowToDesktop(hwnd HWND, id desktop.ID) error {
	return m.call("move window to desktop", slotMoveWindow, uintptr(hwnd), guidPtr(&id))
}

type internalObject struct {
	comObject
	layout *layout
}

// mon prefixes args with the null monitor handle on layouts that take one.
func (m *internalObject) mon(args ...uintptr) []uintptr {
	if !m.layout.monitorArg {
		return args
	}
	return append([]uintptr{0}, args...)
}

func (m *internalObject) desktop(o comObject) VirtualDesktop {
	return &desktopObject{comObject: o, layout: m.layout}
}

func (m *internalObject) Count() (uint32, error) {
	var n uint32
	err := m.call("count", m.layout.internal.getCount, m.mon(uintptr(unsafe.Pointer(&n)))...)
	return n, err
}

func (m *internalObject) Desktops() ([]VirtualDesktop, error) {
	const op = "desktops"
	arr, err := m.queryOut(op, m.layout.internal.getDesktops, m.mon()...)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	var n uint32
	if err := arr.call(op, slotArrayCount, uintptr(unsafe.Pointer(&n))); err != nil {
		return nil, err
	}
	out := make([]VirtualDesktop, 0, n)
	for i := uint32(0); i < n; i++ {
		o, err := arr.queryOut(op, slotArrayAt, uintptr(i), uintptr(unsafe.Pointer(m.layout.iidDesktop)))
		if err != nil {
			ReleaseAll(out)
			return nil, err
		}
		out = append(out, m.desktop(o))
	}
	return out, nil
}

func (m *internalObject) Current() (VirtualDesktop, error) {
	o, err := m.queryOut("current", m.layout.internal.getCurrent, m.mon()...)
	if err != nil {
		return nil, err
	}
	return m.desktop(o), nil
}

func (m *internalObject) Adjacent(d VirtualDesktop, dir Direction) (VirtualDesktop, error) {
	const op = "adjacent"
	p, err := desktopPtr(op, d)
	if err != nil {
		return nil, err
	}
	o, err := m.queryOut(op, m.layout.internal.getAdjacent, p, uintptr(dir))
	if err != nil {
		return nil, err
	}
	return m.desktop(o), nil
}

func (m *internalObject) Switch(d VirtualDesktop) error {
	const op = "switch"
	p, err := desktopPtr(op, d)
	if err != nil {
		return err
	}
	return m.call(op, m.layout.internal.switchDesktop, m.mon(p)...)
}

func (m *internalObject) Create() (VirtualDesktop, error) {
	o, err := m.queryOut("create", m.layout.internal.create, m.mon()...)
	if err != nil {
		return nil, err
	}
	return m.desktop(o), nil
}

func (m *internalObject) MoveDesktop(d VirtualDesktop, index uint32) error {
	const op = "move desktop"
	p, err := desktopPtr(op, d)
	if err != nil {
		return err
	}
	args := []uintptr{p}
	if m.layout.monitorArg {
		args = append(args, 0)
	}
	args = append(args, uintptr(index))
	return m.call(op, m.layout.internal.moveDesktop, args...)
}

func (m *internalObject) Remove(d, fallback VirtualDesktop) error {
	const op = "remove"
	p, err := desktopPtr(op, d)
	if err != nil {
		return err
	}
	fb, err := desktopPtr(op, fallback)
	if err != nil {
		return err
	}
	return m.call(op, m.layout.internal.remove, p, fb)
}

func (m *internalObject) Find(id desktop.ID) (VirtualDesktop, error) {
	o, err := m.queryOut("find", m.layout.internal.find, guidPtr(&id))
	if err != nil {
		return nil, err
	}
	return m.desktop(o), nil
}

func (m *internalObject) MoveView(view ApplicationView, d VirtualDesktop) error {
	const op = "move view"
	v, err := viewPtr(op, view)
	if err != nil {
		return err
	}
	p, err := desktopPtr(op, d)
	if err != nil {
		return err
	}
	return m.call(op, m.layout.internal.moveView, v, p)
}

func (m *internalObject) setString(op string, slot int, d VirtualDesktop, s string) error {
	p, err := desktopPtr(op, d)
	if err != nil {
		return err
	}
	h, err := newHString(op, s)
	if err != nil {
		return err
	}
	defer ole.DeleteHString(h)
	return m.call(op, slot, p, uintptr(h))
}

func (m *internalObject) SetName(d VirtualDesktop, name string) error {
	return m.setString("set name", m.layout.internal.setName, d, name)
}

func (m *internalObject) SetWallpaper(d VirtualDesktop, path string) error {
	return m.setString("set wallpaper", m.layout.internal.setWallpaper, d, path)
}

func (m *internalObject) SetWallpaperForAll(path string) error {
	const op = "set wallpaper for all"
	h, err := newHString(op, path)
	if err != nil {
		return err
	}
	defer ole.DeleteHString(h)
	return m.call(op, m.layout.internal.updateWallpaperAll, uintptr(h))
}

// desktopObject is one desktop. Borrowed instances come from callbacks and
// are never released here.
type desktopObject struct {
	comObject
	layout   *layout
	borrowed bool
}

func (d *desktopObject) Release() {
	if d.borrowed {
		d.unk = nil
		return
	}
	d.comObject.Release()
}

func (d *desktopObject) ID() (desktop.ID, error) {
	var id desktop.ID
	err := d.call("desktop id", d.layout.desktop.getID, guidPtr(&id))
	return id, err
}

func (d *desktopObject) Name() (string, error) {
	var h ole.HString
	if err := d.call("desktop name", d.layout.desktop.getName, uintptr(unsafe.Pointer(&h))); err != nil {
		return "", err
	}
	return readHString(h), nil
}

func (d *desktopObject) Wallpaper() (string, error) {
	var h ole.HString
	if err := d.call("desktop wallpaper", d.layout.desktop.getWallpaper, uintptr(unsafe.Pointer(&h))); err != nil {
		return "", err
	}
	return readHString(h), nil
}

func (d *desktopObject) IsViewVisible(view ApplicationView) (bool, error) {
	const op = "is view visible"
	v, err := viewPtr(op, view)
	if err != nil {
		return false, err
	}
	var visible int32
	err = d.call(op, d.layout.desktop.isViewVisible, v, uintptr(unsafe.Pointer(&visible)))
	return visible != 0, err
}

type viewObject struct {
	comObject
	borrowed bool
}

func (v *viewObject) Release() {
	if v.borrowed {
		v.unk = nil
		return
	}
	v.comObject.Release()
}

func (v *viewObject) Window() (HWND, error) {
	var hwnd HWND
	err := v.call("view window", slotViewThumbnailWindow, uintptr(unsafe.Pointer(&hwnd)))
	return hwnd, err
}

func (v *viewObject) AppUserModelID() (string, error) {
	var p *uint16
	if err := v.call("view app id", slotViewAppUserModelID, uintptr(unsafe.Pointer(&p))); err != nil {
		return "", err
	}
	// The shell keeps ownership of the returned string.
	return windows.UTF16PtrToString(p), nil
}

func (v *viewObject) DesktopID() (desktop.ID, error) {
	var id desktop.ID
	err := v.call("view desktop id", slotViewDesktopID, guidPtr(&id))
	return id, err
}

type viewsObject struct {
	comObject
}

func (c *viewsObject) ViewForWindow(hwnd HWND) (ApplicationView, error) {
	o, err := c.queryOut("view for window", slotViewForHwnd, uintptr(hwnd))
	if err != nil {
		return nil, err
	}
	return &viewObject{comObject: o}, nil
}

func (c *viewsObject) ViewInFocus() (ApplicationView, error) {
	o, err := c.queryOut("view in focus", slotViewInFocus)
	if err != nil {
		return nil, err
	}
	return &viewObject{comObject: o}, nil
}

type pinnedObject struct {
	comObject
}

func (p *pinnedObject) appCall(op string, slot int, appID string, extra ...uintptr) error {
	s, err := windows.UTF16PtrFromString(appID)
	if err != nil {
		return vderr.Wrap(op, err)
	}
	args := append([]uintptr{uintptr(unsafe.Pointer(s))}, extra...)
	return p.call(op, slot, args...)
}

func (p *pinnedObject) IsAppPinned(appID string) (bool, error) {
	var pinned int32
	err := p.appCall("is app pinned", slotIsAppPinned, appID, uintptr(unsafe.Pointer(&pinned)))
	return pinned != 0, err
}

func (p *pinnedObject) PinApp(appID string) error {
	return p.appCall("pin app", slotPinApp, appID)
}

func (p *pinnedObject) UnpinApp(appID string) error {
	return p.appCall("unpin app", slotUnpinApp, appID)
}

func (p *pinnedObject) IsViewPinned(view ApplicationView) (bool, error) {
	const op = "is view pinned"
	v, err := viewPtr(op, view)
	if err != nil {
		return false, err
	}
	var pinned int32
	err = p.call(op, slotIsViewPinned, v, uintptr(unsafe.Pointer(&pinned)))
	return pinned != 0, err
}

func (p *pinnedObject) PinView(view ApplicationView) error {
	const op = "pin view"
	v, err := viewPtr(op, view)
	if err != nil {
		return err
	}
	return p.call(op, slotPinView, v)
}

func (p *pinnedObject) UnpinView(view ApplicationView) error {
	const op = "unpin view"
	v, err := viewPtr(op, view)
	if err != nil {
		return err
	}
	return p.call(op, slotUnpinView, v)
}

type notifServiceObject struct {
	comObject
	layout    *layout
	callbacks map[Cookie]*callback
}

func (s *notifServiceObject) Register(n Notification) (Cookie, error) {
	const op = "register"
	cb := newCallback(s.layout, n)
	var cookie uint32
	if err := s.call(op, slotRegister, cb.ptr(), uintptr(unsafe.Pointer(&cookie))); err != nil {
		cb.release()
		return 0, err
	}
	s.callbacks[Cookie(cookie)] = cb
	return Cookie(cookie), nil
}

func (s *notifServiceObject) Unregister(c Cookie) error {
	err := s.call("unregister", slotUnregister, uintptr(c))
	if cb, ok := s.callbacks[c]; ok {
		delete(s.callbacks, c)
		cb.release()
	}
	return err
}

// Release drops our references to any callbacks still registered. The shell
// keeps its own references until it unregisters them or goes away.
func (s *notifServiceObject) Release() {
	for c, cb := range s.callbacks {
		delete(s.callbacks, c)
		cb.release()
	}
	s.comObject.Release()
}

func desktopPtr(op string, d VirtualDesktop) (uintptr, error) {
	o, ok := d.(*desktopObject)
	if !ok || o == nil || o.isNil() {
		return 0, vderr.FromCode(op, vderr.CodePointer)
	}
	return o.ptr(), nil
}

func viewPtr(op string, v ApplicationView) (uintptr, error) {
	o, ok := v.(*viewObject)
	if !ok || o == nil || o.isNil() {
		return 0, vderr.FromCode(op, vderr.CodePointer)
	}
	return o.ptr(), nil
}

//go:build windows

package platform

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/1broseidon/winvd/internal/vderr"
)

// callback is a native notification object. The vtable pointer must be the
// first field.
type callback struct {
	vtbl   unsafe.Pointer
	refs   int32
	layout *layout
	sink   Notification
}

var (
	callbacksMu sync.Mutex
	// callbacks keeps live objects reachable and maps this back to them.
	callbacks = map[uintptr]*callback{}

	vtablesMu sync.Mutex
	vtables   = map[*layout][]uintptr{}

	iunknownOnce sync.Once
	iunknownFns  [3]uintptr
)

func newCallback(l *layout, sink Notification) *callback {
	cb := &callback{vtbl: unsafe.Pointer(&vtableFor(l)[0]), refs: 1, layout: l, sink: sink}
	callbacksMu.Lock()
	callbacks[cb.ptr()] = cb
	callbacksMu.Unlock()
	return cb
}

func (cb *callback) ptr() uintptr { return uintptr(unsafe.Pointer(cb)) }

func (cb *callback) release() { releaseCallback(cb.ptr()) }

func lookupCallback(this uintptr) *callback {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	return callbacks[this]
}

func releaseCallback(this uintptr) uintptr {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	cb, ok := callbacks[this]
	if !ok {
		return 0
	}
	n := atomic.AddInt32(&cb.refs, -1)
	if n <= 0 {
		delete(callbacks, this)
		return 0
	}
	return uintptr(n)
}

func vtableFor(l *layout) []uintptr {
	vtablesMu.Lock()
	defer vtablesMu.Unlock()
	if v, ok := vtables[l]; ok {
		return v
	}
	iunknownOnce.Do(func() {
		iunknownFns = [3]uintptr{
			windows.NewCallback(cbQueryInterface),
			windows.NewCallback(cbAddRef),
			windows.NewCallback(cbRelease),
		}
	})
	v := append([]uintptr(nil), iunknownFns[:]...)
	for _, m := range l.notification {
		v = append(v, notifyThunks[m]())
	}
	vtables[l] = v
	return v
}

func cbQueryInterface(this, riid, ppv uintptr) uintptr {
	if ppv == 0 {
		return hresultRet(vderr.CodePointer)
	}
	out := (*uintptr)(unsafe.Pointer(ppv))
	cb := lookupCallback(this)
	iid := (*ole.GUID)(unsafe.Pointer(riid))
	if cb == nil || iid == nil || !(ole.IsEqualGUID(iid, ole.IID_IUnknown) || ole.IsEqualGUID(iid, cb.layout.iidNotification)) {
		*out = 0
		return hresultRet(vderr.CodeNoInterface)
	}
	atomic.AddInt32(&cb.refs, 1)
	*out = this
	return 0
}

func hresultRet(hr vderr.HRESULT) uintptr { return uintptr(uint32(hr)) }

func cbAddRef(this uintptr) uintptr {
	cb := lookupCallback(this)
	if cb == nil {
		return 0
	}
	return uintptr(atomic.AddInt32(&cb.refs, 1))
}

func cbRelease(this uintptr) uintptr {
	return releaseCallback(this)
}

// deliver runs fn against the sink of this. Sink panics are swallowed so
// they never unwind into the shell; the result is always S_OK.
func deliver(this uintptr, fn func(cb *callback)) uintptr {
	cb := lookupCallback(this)
	if cb == nil || cb.sink == nil {
		return 0
	}
	defer func() { _ = recover() }()
	fn(cb)
	return 0
}

func (cb *callback) desktop(p uintptr) VirtualDesktop {
	return &desktopObject{comObject: wrap(p), layout: cb.layout, borrowed: true}
}

func borrowedView(p uintptr) ApplicationView {
	return &viewObject{comObject: wrap(p), borrowed: true}
}

// borrowedString reads an HSTRING the shell still owns.
func borrowedString(p uintptr) string {
	if p == 0 {
		return ""
	}
	return ole.HString(p).String()
}

var notifyThunks = map[notifyMethod]func() uintptr{
	notifyCreated: func() uintptr {
		return windows.NewCallback(func(this, d uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.Created(cb.desktop(d)) })
		})
	},
	notifyDestroyBegin: func() uintptr {
		return windows.NewCallback(func(this, d, fb uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.DestroyBegin(cb.desktop(d), cb.desktop(fb)) })
		})
	},
	notifyDestroyFailed: func() uintptr {
		return windows.NewCallback(func(this, d, fb uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.DestroyFailed(cb.desktop(d), cb.desktop(fb)) })
		})
	},
	notifyDestroyed: func() uintptr {
		return windows.NewCallback(func(this, d, fb uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.Destroyed(cb.desktop(d), cb.desktop(fb)) })
		})
	},
	notifyIsPerMonitorChanged: func() uintptr {
		return windows.NewCallback(func(this, perMonitor uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.IsPerMonitorChanged(int32(perMonitor) != 0) })
		})
	},
	notifyMoved: func() uintptr {
		return windows.NewCallback(func(this, d, oldIndex, newIndex uintptr) uintptr {
			return deliver(this, func(cb *callback) {
				cb.sink.Moved(cb.desktop(d), int64(oldIndex), int64(newIndex))
			})
		})
	},
	notifyNameChanged: func() uintptr {
		return windows.NewCallback(func(this, d, name uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.NameChanged(cb.desktop(d), borrowedString(name)) })
		})
	},
	notifyViewChanged: func() uintptr {
		return windows.NewCallback(func(this, view uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.ViewChanged(borrowedView(view)) })
		})
	},
	notifyCurrentChanged: func() uintptr {
		return windows.NewCallback(func(this, old, new uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.CurrentChanged(cb.desktop(old), cb.desktop(new)) })
		})
	},
	notifyWallpaperChanged: func() uintptr {
		return windows.NewCallback(func(this, d, path uintptr) uintptr {
			return deliver(this, func(cb *callback) { cb.sink.WallpaperChanged(cb.desktop(d), borrowedString(path)) })
		})
	},
}

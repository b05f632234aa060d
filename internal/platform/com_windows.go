//go:build windows

package platform

import (
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/1broseidon/winvd/internal/desktop"
	"github.com/1broseidon/winvd/internal/vderr"
)

var (
	modole32    = windows.NewLazySystemDLL("ole32.dll")
	moduser32   = windows.NewLazySystemDLL("user32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCoCreateInstance   = modole32.NewProc("CoCreateInstance")
	procGetMessageW        = moduser32.NewProc("GetMessageW")
	procPeekMessageW       = moduser32.NewProc("PeekMessageW")
	procTranslateMessage   = moduser32.NewProc("TranslateMessage")
	procDispatchMessageW   = moduser32.NewProc("DispatchMessageW")
	procPostThreadMessageW = moduser32.NewProc("PostThreadMessageW")
	procSetTimer           = moduser32.NewProc("SetTimer")
	procKillTimer          = moduser32.NewProc("KillTimer")
	procSetThreadPriority  = modkernel32.NewProc("SetThreadPriority")
)

const clsctxLocalServer = 0x4

// comObject is an interface pointer whose vtable is called by slot number.
type comObject struct {
	unk *ole.IUnknown
}

func wrap(p uintptr) comObject {
	return comObject{unk: (*ole.IUnknown)(unsafe.Pointer(p))}
}

func (o comObject) ptr() uintptr { return uintptr(unsafe.Pointer(o.unk)) }

func (o comObject) isNil() bool { return o.unk == nil }

func (o comObject) slot(i int) uintptr {
	vtbl := (*[64]uintptr)(unsafe.Pointer(o.unk.RawVTable))
	return vtbl[i]
}

// call invokes vtable slot i with this as the first argument.
func (o *comObject) call(op string, i int, args ...uintptr) error {
	if o.unk == nil {
		return vderr.New(op, vderr.AllocatedNullPtr)
	}
	all := make([]uintptr, 0, len(args)+1)
	all = append(all, o.ptr())
	all = append(all, args...)
	r, _, _ := syscall.SyscallN(o.slot(i), all...)
	return vderr.FromCode(op, vderr.HRESULT(int32(r)))
}

func (o *comObject) Release() {
	if o.unk != nil {
		o.unk.Release()
		o.unk = nil
	}
}

// queryOut runs a call whose last argument is an interface out-pointer and
// returns it, failing with AllocatedNullPtr when the call succeeded but
// produced nothing.
func (o *comObject) queryOut(op string, i int, args ...uintptr) (comObject, error) {
	var out uintptr
	args = append(args, uintptr(unsafe.Pointer(&out)))
	if err := o.call(op, i, args...); err != nil {
		return comObject{}, err
	}
	if out == 0 {
		return comObject{}, vderr.New(op, vderr.AllocatedNullPtr)
	}
	return wrap(out), nil
}

func coCreateInstance(clsid, iid *ole.GUID) (comObject, error) {
	var out uintptr
	r, _, _ := procCoCreateInstance.Call(
		uintptr(unsafe.Pointer(clsid)),
		0,
		clsctxLocalServer,
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	)
	if err := vderr.FromCode("create shell instance", vderr.HRESULT(int32(r))); err != nil {
		return comObject{}, err
	}
	if out == 0 {
		return comObject{}, vderr.New("create shell instance", vderr.AllocatedNullPtr)
	}
	return wrap(out), nil
}

func guidPtr(id *desktop.ID) uintptr {
	return uintptr(unsafe.Pointer(id))
}

func newHString(op, s string) (ole.HString, error) {
	h, err := ole.NewHString(s)
	if err != nil {
		return 0, vderr.Wrap(op, err)
	}
	return h, nil
}

func readHString(h ole.HString) string {
	if h == 0 {
		return ""
	}
	s := h.String()
	ole.DeleteHString(h)
	return s
}

func boolArg(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}

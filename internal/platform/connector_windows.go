//go:build windows

package platform

import (
	"errors"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/1broseidon/winvd/internal/vderr"
)

const (
	wmQuit  = 0x0012
	wmTimer = 0x0113
	// wmStop asks a pump to leave its loop.
	wmStop = 0x0400 + 0x10

	pmNoRemove = 0x0000
)

type comConnector struct{}

// NewConnector returns the COM-backed connector.
func NewConnector() Connector { return comConnector{} }

func (comConnector) Attach() (func(), error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) {
			return nil, vderr.Wrap("initialize", err)
		}
		switch hr := vderr.HRESULT(int32(oleErr.Code())); {
		case hr == vderr.SFalse:
			// Already initialized on this thread; the uninitialize below
			// balances this call.
		case hr == vderr.CodeChangedMode:
			// Someone else owns this thread's apartment. Calls still work,
			// but we must not uninitialize it.
			return func() {}, nil
		default:
			return nil, vderr.FromCode("initialize", hr)
		}
	}
	return ole.CoUninitialize, nil
}

func (comConnector) SetPriority(p Priority) error {
	r, _, err := procSetThreadPriority.Call(uintptr(windows.CurrentThread()), uintptr(p.Level()))
	if r == 0 {
		return vderr.Wrap("set thread priority", err)
	}
	return nil
}

func (comConnector) Connect() (ServiceProvider, error) {
	l, err := selectLayout()
	if err != nil {
		return nil, vderr.Wrap("connect", err)
	}
	o, err := coCreateInstance(clsidImmersiveShell, iidServiceProvider)
	if err != nil {
		return nil, err
	}
	return &providerObject{comObject: o, layout: l}, nil
}

func (comConnector) NewPump(interval time.Duration) (Pump, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	var m msg
	// Force the thread message queue into existence before anyone posts to it.
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)
	id, _, err := procSetTimer.Call(0, 0, uintptr(interval.Milliseconds()), 0)
	if id == 0 {
		return nil, vderr.Wrap("set timer", err)
	}
	return &messagePump{tid: windows.GetCurrentThreadId(), timer: id}, nil
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// messagePump is a Win32 message loop on the thread that created it. Shell
// callbacks are dispatched from inside GetMessageW.
type messagePump struct {
	tid   uint32
	timer uintptr
}

func (p *messagePump) Wait() bool {
	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0, -1:
			return false
		}
		switch {
		case m.message == wmTimer && m.hwnd == 0:
			return true
		case m.message == wmStop, m.message == wmQuit:
			return false
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (p *messagePump) Quit() {
	procPostThreadMessageW.Call(uintptr(p.tid), wmStop, 0, 0)
}

func (p *messagePump) Close() {
	if p.timer != 0 {
		procKillTimer.Call(0, p.timer)
		p.timer = 0
	}
}

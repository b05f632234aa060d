// Package vderr classifies failures of the virtual desktop shell service.
//
// Native calls report an HRESULT. Classify maps the codes the service is known
// to produce onto a Kind and tells whether the failure is transient, meaning
// the service most likely went away (explorer restart) and a fresh session may
// succeed.
package vderr

import (
	"errors"
	"fmt"
)

// HRESULT is a native status code. Negative values are failures.
type HRESULT int32

// Failed reports whether hr is a failure code.
func (hr HRESULT) Failed() bool { return hr < 0 }

func (hr HRESULT) Error() string {
	return fmt.Sprintf("HRESULT 0x%08X", uint32(hr))
}

// Known status codes.
const (
	SOK    HRESULT = 0
	SFalse HRESULT = 1

	CodeClassNotRegistered HRESULT = -2147221164 // 0x80040154 REGDB_E_CLASSNOTREG
	CodeRPCUnavailable     HRESULT = -2147023174 // 0x800706BA RPC_S_SERVER_UNAVAILABLE
	CodeObjectNotConnected HRESULT = -2147220995 // 0x800401FD CO_E_OBJNOTCONNECTED
	CodeElementNotFound    HRESULT = -2147319765 // 0x8002802B TYPE_E_ELEMENTNOTFOUND
	CodeNotInitialized     HRESULT = -2147221008 // 0x800401F0 CO_E_NOTINITIALIZED
	CodeNoInterface        HRESULT = -2147467262 // 0x80004002 E_NOINTERFACE
	CodePointer            HRESULT = -2147467261 // 0x80004003 E_POINTER
	CodeFail               HRESULT = -2147467259 // 0x80004005 E_FAIL
	CodeInvalidArg         HRESULT = -2147024809 // 0x80070057 E_INVALIDARG
	CodeChangedMode        HRESULT = -2147417850 // 0x80010106 RPC_E_CHANGED_MODE
)

// Kind is the semantic category of a failure. Kind values are errors
// themselves so callers can write errors.Is(err, vderr.DesktopNotFound).
type Kind int

const (
	Native Kind = iota
	WindowNotFound
	DesktopNotFound
	CreateDesktopFailed
	RemoveDesktopFailed
	ClassNotRegistered
	RPCServerUnavailable
	ObjectNotConnected
	ElementNotFound
	ComNotInitialized
	AllocatedNullPtr
	SenderError
	ReceiverError
)

var kindNames = map[Kind]string{
	Native:               "Native",
	WindowNotFound:       "WindowNotFound",
	DesktopNotFound:      "DesktopNotFound",
	CreateDesktopFailed:  "CreateDesktopFailed",
	RemoveDesktopFailed:  "RemoveDesktopFailed",
	ClassNotRegistered:   "ClassNotRegistered",
	RPCServerUnavailable: "RpcServerNotAvailable",
	ObjectNotConnected:   "ObjectNotConnected",
	ElementNotFound:      "ElementNotFound",
	ComNotInitialized:    "ComNotInitialized",
	AllocatedNullPtr:     "AllocatedNullPtr",
	SenderError:          "SenderError",
	ReceiverError:        "ReceiverError",
}

var kindMessages = map[Kind]string{
	Native:               "native call failed",
	WindowNotFound:       "window not found",
	DesktopNotFound:      "desktop not found",
	CreateDesktopFailed:  "create desktop failed",
	RemoveDesktopFailed:  "remove desktop failed",
	ClassNotRegistered:   "shell service is not registered (is explorer running?)",
	RPCServerUnavailable: "shell service is unavailable",
	ObjectNotConnected:   "shell object is no longer connected",
	ElementNotFound:      "element not found",
	ComNotInitialized:    "COM is not initialized on this thread",
	AllocatedNullPtr:     "shell service returned a null object",
	SenderError:          "request channel closed",
	ReceiverError:        "response channel closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return k.String()
}

// Transient reports whether a failure of this kind may clear up after the
// cached session is dropped and re-acquired.
func (k Kind) Transient() bool {
	switch k {
	case ClassNotRegistered, RPCServerUnavailable, ObjectNotConnected, AllocatedNullPtr:
		return true
	default:
		return false
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Native, false
}

// Classify maps a native code to its kind and retry eligibility.
func Classify(hr HRESULT) (Kind, bool) {
	var k Kind
	switch hr {
	case CodeClassNotRegistered:
		k = ClassNotRegistered
	case CodeRPCUnavailable:
		k = RPCServerUnavailable
	case CodeObjectNotConnected:
		k = ObjectNotConnected
	case CodeElementNotFound:
		k = ElementNotFound
	case CodeNotInitialized:
		k = ComNotInitialized
	default:
		k = Native
	}
	return k, k.Transient()
}

// Error is a classified failure.
type Error struct {
	Op   string
	Kind Kind
	// Code is the native status, zero when the failure did not come from a
	// native call.
	Code HRESULT
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Code != 0 && e.Kind == Native {
		msg = fmt.Sprintf("%s (%v)", msg, e.Code)
	} else if e.Code != 0 {
		msg = fmt.Sprintf("%s (0x%08X)", msg, uint32(e.Code))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target, or an HRESULT target against Code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case HRESULT:
		return e.Code != 0 && e.Code == t
	}
	return false
}

// Transient reports whether the failure is eligible for retry.
func (e *Error) Transient() bool { return e.Kind.Transient() }

// New returns a non-native error of the given kind.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// FromCode returns nil for success codes and a classified *Error otherwise.
func FromCode(op string, hr HRESULT) error {
	if !hr.Failed() {
		return nil
	}
	kind, _ := Classify(hr)
	return &Error{Op: op, Kind: kind, Code: hr}
}

// Wrap classifies err and attaches op. An *Error keeps its kind and code and
// only gains op when it had none.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op != "" {
			return err
		}
		cp := *e
		cp.Op = op
		return &cp
	}
	var hr HRESULT
	if errors.As(err, &hr) {
		return FromCode(op, hr)
	}
	var k Kind
	if errors.As(err, &k) {
		return New(op, k)
	}
	return &Error{Op: op, Kind: Native, Err: err}
}

// KindOf returns the kind of err, Native for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return Native
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	var hr HRESULT
	if errors.As(err, &hr) {
		kind, _ := Classify(hr)
		return kind
	}
	return Native
}

// IsTransient reports whether err is one of the retryable kinds.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Transient()
}

// Remap turns an ElementNotFound failure into the call-site specific kind.
// Any other error is returned unchanged.
func Remap(err error, to Kind) error {
	if err == nil || KindOf(err) != ElementNotFound {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Op: e.Op, Kind: to, Code: e.Code, Err: e.Err}
	}
	return &Error{Kind: to, Code: CodeElementNotFound}
}

// Promote replaces the kind of a non-transient failure. It is used where a
// whole operation has a dedicated failure kind (create, remove) but transient
// failures must stay retryable and not-found failures must stay precise.
func Promote(err error, to Kind) error {
	if err == nil || IsTransient(err) {
		return err
	}
	switch KindOf(err) {
	case DesktopNotFound, WindowNotFound, to:
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Op: e.Op, Kind: to, Code: e.Code, Err: e.Err}
	}
	return &Error{Kind: to, Err: err}
}

// Package daperr collects the error taxonomy shared by the probe, swd,
// target and rsp layers so that a fault raised deep in a USB transaction
// can be rendered by the RSP layer as a single `E<hh>` byte without each
// layer re-inventing its own error type.
package daperr

import "fmt"

// Kind identifies the class of failure, independent of the message text.
// Values are stable across the module and are what rsp.Server renders as
// the hex byte in an `E<hh>` reply.
type Kind uint8

const (
	KindNone Kind = iota
	KindProbeNotFound
	KindUsbOpenFailed
	KindUsbInit
	KindUsbExit
	KindUsbWrite
	KindUsbTimeout
	KindInvalidTxLen
	KindDapResponse
	KindAckFault
	KindAckWait
	KindNoMemory
	KindInvalidArgument
	KindFatal
	KindTargetNotFound
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindProbeNotFound:
		return "probe not found"
	case KindUsbOpenFailed:
		return "usb open failed"
	case KindUsbInit:
		return "usb init failed"
	case KindUsbExit:
		return "usb exit failed"
	case KindUsbWrite:
		return "usb write failed"
	case KindUsbTimeout:
		return "usb timeout"
	case KindInvalidTxLen:
		return "invalid tx length"
	case KindDapResponse:
		return "unexpected dap response"
	case KindAckFault:
		return "swd ack fault"
	case KindAckWait:
		return "swd ack wait exhausted"
	case KindNoMemory:
		return "no memory"
	case KindInvalidArgument:
		return "invalid argument"
	case KindFatal:
		return "fatal"
	case KindTargetNotFound:
		return "target collaborator not found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across package boundaries. It
// carries an optional message, an optional wrapped cause, and a Kind that
// callers can switch on without string matching.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return fmt.Sprintf("%s: %v", e.msg, e.err)
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return e.kind.String()
}

func (e *Error) Unwrap() error {
	return e.err
}

// KindOf reports the error's Kind: KindNone if err is nil, KindFatal if
// err is not an *Error produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if e, ok := err.(*Error); ok {
		return e.kind
	}
	return KindFatal
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, wrapping a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Byte renders the Kind as the single error byte the RSP layer puts into
// an `E<hh>` reply.
func Byte(err error) byte {
	k := KindOf(err)
	if k == KindNone {
		return 0
	}
	return byte(k)
}

// Sentinels for errors.Is checks against a fixed condition rather than a
// formatted message.
var (
	ErrNoProbe     = New(KindProbeNotFound, "no CMSIS-DAP HID device found")
	ErrUnsupported = New(KindUnsupported, "operation not implemented")
	ErrNoCollab    = New(KindTargetNotFound, "required collaborator not discovered")
)

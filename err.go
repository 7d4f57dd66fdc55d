/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Error taxonomy
 */

package main

import "fmt"

// ErrorKind classifies a BridgeError for the purpose of deciding whether
// it terminates the process, fails one setter, or sends the supervisor
// to Disconnected.
type ErrorKind int

const (
	KindConfig ErrorKind = iota
	KindInvalidParam
	KindUnsupported
	KindInit
	KindTransport
	KindPtyIO
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInvalidParam:
		return "invalid_param"
	case KindUnsupported:
		return "unsupported"
	case KindInit:
		return "init"
	case KindTransport:
		return "transport"
	case KindPtyIO:
		return "pty_io"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// BridgeError is the single error type returned across the bridge. Op
// names the operation or protocol stage that failed, for diagnostics.
type BridgeError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// Fatal reports whether this error kind must terminate the process.
func (e *BridgeError) Fatal() bool {
	return e.Kind == KindConfig || e.Kind == KindFatal
}

func newErr(kind ErrorKind, op string, err error) *BridgeError {
	return &BridgeError{Kind: kind, Op: op, Err: err}
}

func newErrf(kind ErrorKind, op, format string, args ...interface{}) *BridgeError {
	return &BridgeError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// errOrEmpty turns a nil error accompanying an unexpectedly short or
// empty device reply into a reportable one.
func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("empty reply")
}

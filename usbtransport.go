/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * USB transport abstraction, backed by gousb
 */

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// ControlTimeout bounds every control transfer issued through a
// UsbSession.
const ControlTimeout = 5 * time.Second

// TransportSubKind classifies a transport failure.
type TransportSubKind int

const (
	TransportAccess TransportSubKind = iota
	TransportPipe
	TransportIO
	TransportTimeout
	TransportDisconnected
	TransportOther
)

func (k TransportSubKind) String() string {
	switch k {
	case TransportAccess:
		return "access"
	case TransportPipe:
		return "pipe"
	case TransportIO:
		return "io"
	case TransportTimeout:
		return "timeout"
	case TransportDisconnected:
		return "disconnected"
	default:
		return "other"
	}
}

// TransportError is the single error shape every transport-facing
// operation returns, nested inside a Transport-kind BridgeError.
type TransportError struct {
	SubKind TransportSubKind
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("usb %s: %s: %s", e.SubKind, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func classifyUsbErr(err error) TransportSubKind {
	var gerr gousb.Error
	if errors.As(err, &gerr) {
		switch gerr {
		case gousb.ErrorAccess:
			return TransportAccess
		case gousb.ErrorPipe:
			return TransportPipe
		case gousb.ErrorTimeout:
			return TransportTimeout
		case gousb.ErrorNoDevice, gousb.ErrorNotFound:
			return TransportDisconnected
		case gousb.ErrorIO:
			return TransportIO
		default:
			return TransportOther
		}
	}
	return TransportOther
}

func wrapTransportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	te := &TransportError{SubKind: classifyUsbErr(err), Op: op, Err: err}
	return newErr(KindTransport, op, te)
}

// UsbContext wraps a gousb.Context, the handle through which devices
// are found and opened.
type UsbContext struct {
	ctx *gousb.Context
}

func openUsbContext() *UsbContext {
	return &UsbContext{ctx: gousb.NewContext()}
}

func (c *UsbContext) Close() error {
	return c.ctx.Close()
}

// hotplugSupported reports whether this transport can deliver
// asynchronous arrival/departure notifications. gousb exposes no
// libusb hotplug binding, so this always returns false and callers
// fall back to polling findDevice, exactly as the spec's unsupported
// case requires.
func (c *UsbContext) hotplugSupported() bool { return false }

// findDevice looks up addr once; it never blocks waiting for the
// device to appear. Callers poll it on their own schedule.
func (c *UsbContext) findDevice(addr DeviceAddress) (*gousb.Device, bool, error) {
	dev, err := c.ctx.OpenDeviceWithVIDPID(addr.Vendor, addr.Product)
	if err != nil {
		return nil, false, wrapTransportErr("open_device_with_vidpid", err)
	}
	if dev == nil {
		return nil, false, nil
	}
	return dev, true, nil
}

// usbController is the control-transfer surface a Driver needs. It is
// satisfied by *UsbSession; tests substitute a fake to exercise the
// CH34x protocol encoding without real hardware.
type usbController interface {
	Control(rType, request uint8, value, index uint16, data []byte) (int, error)
}

// UsbSession is the transient, opened handle to one physical device:
// a claimed interface plus its two bulk endpoints.
type UsbSession struct {
	device *gousb.Device
	config *gousb.Config
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
}

func openUsbSession(dev *gousb.Device, ifNum, inEP, outEP int, log *Logger) (*UsbSession, error) {
	// Detach is tolerated: a warning, not fatal, per the UsbSession
	// invariant.
	if err := dev.SetAutoDetach(true); err != nil {
		log.Info('!', "detach kernel driver: %s (continuing)", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		return nil, wrapTransportErr("set_configuration", err)
	}

	iface, err := cfg.Interface(ifNum, 0)
	if err != nil {
		cfg.Close()
		return nil, wrapTransportErr("claim_interface", err)
	}

	in, err := iface.InEndpoint(inEP)
	if err != nil {
		iface.Close()
		cfg.Close()
		return nil, wrapTransportErr("in_endpoint", err)
	}

	out, err := iface.OutEndpoint(outEP)
	if err != nil {
		iface.Close()
		cfg.Close()
		return nil, wrapTransportErr("out_endpoint", err)
	}

	dev.ControlTimeout = ControlTimeout

	return &UsbSession{device: dev, config: cfg, iface: iface, in: in, out: out}, nil
}

// Control issues one control transfer. rType follows the USB spec
// direction convention: 0x40 host-to-device, 0xC0 device-to-host.
func (s *UsbSession) Control(rType, request uint8, value, index uint16, data []byte) (int, error) {
	n, err := s.device.Control(rType, request, value, index, data)
	if err != nil {
		return n, wrapTransportErr("control", err)
	}
	return n, nil
}

func (s *UsbSession) Close() {
	if s.iface != nil {
		s.iface.Close()
	}
	if s.config != nil {
		s.config.Close()
	}
	if s.device != nil {
		s.device.Close()
	}
}

/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Driver protocol interface and serial parameter types
 */

package main

// DataBits is the frame's data-bit count.
type DataBits int

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

// StopBits is the frame's stop-bit count. 1.5 stop bits is a distinct
// value because most chips, including the CH34x, cannot express it as
// a simple multiple.
type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits1Half
	StopBits2
)

// Parity is the frame's parity mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// SerialParams is the full set of line parameters a Driver can apply.
// Mutated only through the Driver interface; every setter must reach
// the chip before returning success.
type SerialParams struct {
	BaudRate      int
	DataBits      DataBits
	StopBits      StopBits
	Parity        Parity
	DTR           bool
	RTS           bool
	BreakAsserted bool
}

// Driver abstracts one chip family's control-transfer language. The
// transfer engine and lifecycle supervisor hold a Driver value and
// never reference a concrete chip type, replacing the class-hierarchy
// shape of the system this protocol was ported from with a plain
// interface implemented by one concrete struct per chip family.
type Driver interface {
	// Endpoints reports the interface number and bulk IN/OUT endpoint
	// numbers this driver expects on the claimed interface.
	Endpoints() (ifNum, in, out int)

	// Init runs the chip's bring-up sequence immediately after the
	// interface has been claimed, applying requestedBaud as the final
	// step if it differs from the chip's default.
	Init(session usbController, requestedBaud int) error

	// SetParameters applies baud rate, frame format, and parity in one
	// call.
	SetParameters(session usbController, params SerialParams) error

	// SetControlLines asserts or deasserts DTR/RTS.
	SetControlLines(session usbController, dtr, rts bool) error

	// SetBreak asserts or clears a break condition.
	SetBreak(session usbController, assert bool) error
}

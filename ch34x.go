/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Driver protocol: WCH CH340/CH341 ("CH34x")
 */

package main

const (
	ch34xIfNum = 0
	// Wire-level endpoint addresses, direction bit included; gousb's
	// InEndpoint/OutEndpoint take the bare endpoint number.
	ch34xInEPAddr  = 0x82
	ch34xOutEPAddr = 0x02
	ch34xInEP      = ch34xInEPAddr & 0x0f
	ch34xOutEP     = ch34xOutEPAddr & 0x0f

	ch34xCtlToDevice = 0x40
	ch34xCtlToHost   = 0xC0

	ch34xLcrEnableRX  = 0x80
	ch34xLcrEnableTX  = 0x40
	ch34xLcrMarkSpace = 0x20
	ch34xLcrParEven   = 0x10
	ch34xLcrEnablePar = 0x08
	ch34xLcrStopBits2 = 0x04
	ch34xLcrCS8       = 0x03
	ch34xLcrCS7       = 0x02
	ch34xLcrCS6       = 0x01
	ch34xLcrCS5       = 0x00

	ch34xSclDTR = 0x20
	ch34xSclRTS = 0x40

	ch34xDefaultBaud       = 115200
	ch34xBaudBase          = 1532620800
	ch34xBaudDivMax        = 3
	ch34xMinControlVersion = 20
)

// ch34xDriver implements Driver for the WCH CH340/CH341 family. A
// fresh instance is created for each connection, so chipVersion never
// carries stale state across a disconnect/reconnect cycle.
type ch34xDriver struct {
	chipVersion byte
}

func newCh34xDriver() Driver { return &ch34xDriver{} }

func (d *ch34xDriver) Endpoints() (ifNum, in, out int) {
	return ch34xIfNum, ch34xInEP, ch34xOutEP
}

func ch34xControlOut(s usbController, request uint8, value, index uint16) error {
	_, err := s.Control(ch34xCtlToDevice, request, value, index, nil)
	return err
}

func ch34xControlIn(s usbController, request uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := s.Control(ch34xCtlToHost, request, value, index, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ch34xCheckState reads len(expected) bytes and compares each
// non-negative entry against the corresponding reply byte; -1 means
// "don't care". A mismatch is a fatal init error carrying stage.
func ch34xCheckState(s usbController, stage string, request uint8, value uint16, expected []int) error {
	buf, err := ch34xControlIn(s, request, value, 0, len(expected))
	if err != nil {
		return newErr(KindInit, stage, err)
	}
	if len(buf) != len(expected) {
		return newErrf(KindInit, stage, "expected %d bytes, got %d", len(expected), len(buf))
	}
	for i, want := range expected {
		if want < 0 {
			continue
		}
		if int(buf[i]) != want {
			return newErrf(KindInit, stage, "byte %d: expected 0x%02X, got 0x%02X", i, want, buf[i])
		}
	}
	return nil
}

func (d *ch34xDriver) Init(s usbController, requestedBaud int) error {
	// 1. Read chip version.
	buf, err := ch34xControlIn(s, 0x5F, 0, 0, 8)
	if err != nil || len(buf) == 0 {
		return newErr(KindInit, "version_check", errOrEmpty(err))
	}
	d.chipVersion = buf[0]

	// 2. Chip clear.
	if err := ch34xControlOut(s, 0xA1, 0, 0); err != nil {
		return newErr(KindInit, "chip_clear", err)
	}

	// 3. Default baud.
	if err := d.setBaudRate(s, ch34xDefaultBaud); err != nil {
		return newErr(KindInit, "baud_rate_initial", err)
	}

	// 4. Check-state.
	if err := ch34xCheckState(s, "check_state_1", 0x95, 0x2518, []int{-1, 0x00}); err != nil {
		return err
	}

	// 5. Set LCR.
	lcr := ch34xLcrEnableRX | ch34xLcrEnableTX | ch34xLcrCS8
	if err := ch34xControlOut(s, 0x9A, 0x2518, uint16(lcr)); err != nil {
		return newErr(KindInit, "set_lcr", err)
	}

	// 6. Check-state, length only.
	if err := ch34xCheckState(s, "check_state_2", 0x95, 0x0706, []int{-1, -1}); err != nil {
		return err
	}

	// 7. Chip reset.
	if err := ch34xControlOut(s, 0xA1, 0x501F, 0xD90A); err != nil {
		return newErr(KindInit, "chip_reset", err)
	}

	// 8. Reapply default baud.
	if err := d.setBaudRate(s, ch34xDefaultBaud); err != nil {
		return newErr(KindInit, "baud_rate_post_reset", err)
	}

	// 9. DTR/RTS both asserted.
	if err := d.SetControlLines(s, true, true); err != nil {
		return newErr(KindInit, "control_lines", err)
	}

	// 10. Caller-requested baud, if different from default.
	if requestedBaud != ch34xDefaultBaud {
		if err := d.setBaudRate(s, requestedBaud); err != nil {
			return newErr(KindInit, "baud_rate_requested", err)
		}
	}

	return nil
}

func (d *ch34xDriver) setBaudRate(s usbController, rate int) error {
	if rate <= 0 {
		return newErrf(KindInvalidParam, "baud_rate", "rate must be positive, got %d", rate)
	}

	var factor, divisor int
	if rate == 921600 {
		factor, divisor = 0xF300, 7
	} else {
		factor = ch34xBaudBase / rate
		divisor = ch34xBaudDivMax
		for factor > 0xFFF0 && divisor > 0 {
			factor >>= 3
			divisor--
		}
		if factor > 0xFFF0 {
			return newErrf(KindUnsupported, "baud_rate", "unsupported baud rate %d", rate)
		}
		factor = 0x10000 - factor
	}

	divisor |= 0x0080
	val1 := uint16((factor & 0xFF00) | divisor)
	val2 := uint16(factor & 0x00FF)

	if err := ch34xControlOut(s, 0x9A, 0x1312, val1); err != nil {
		return newErr(KindTransport, "baud_rate[1]", err)
	}
	if err := ch34xControlOut(s, 0x9A, 0x0F2C, val2); err != nil {
		return newErr(KindTransport, "baud_rate[2]", err)
	}
	return nil
}

func (d *ch34xDriver) SetParameters(s usbController, p SerialParams) error {
	if p.BaudRate <= 0 {
		return newErrf(KindInvalidParam, "baud_rate", "rate must be positive, got %d", p.BaudRate)
	}
	if err := d.setBaudRate(s, p.BaudRate); err != nil {
		return err
	}

	lcr := ch34xLcrEnableRX | ch34xLcrEnableTX

	switch p.DataBits {
	case DataBits5:
		lcr |= ch34xLcrCS5
	case DataBits6:
		lcr |= ch34xLcrCS6
	case DataBits7:
		lcr |= ch34xLcrCS7
	case DataBits8:
		lcr |= ch34xLcrCS8
	default:
		return newErrf(KindInvalidParam, "data_bits", "unsupported data bits %d", p.DataBits)
	}

	switch p.Parity {
	case ParityNone:
	case ParityOdd:
		lcr |= ch34xLcrEnablePar
	case ParityEven:
		lcr |= ch34xLcrEnablePar | ch34xLcrParEven
	case ParityMark:
		lcr |= ch34xLcrEnablePar | ch34xLcrMarkSpace
	case ParitySpace:
		lcr |= ch34xLcrEnablePar | ch34xLcrMarkSpace | ch34xLcrParEven
	default:
		return newErrf(KindInvalidParam, "parity", "unsupported parity %d", p.Parity)
	}

	switch p.StopBits {
	case StopBits1:
	case StopBits2:
		lcr |= ch34xLcrStopBits2
	case StopBits1Half:
		return newErrf(KindUnsupported, "stop_bits", "1.5 stop bits not supported")
	default:
		return newErrf(KindInvalidParam, "stop_bits", "unsupported stop bits %d", p.StopBits)
	}

	if err := ch34xControlOut(s, 0x9A, 0x2518, uint16(lcr)); err != nil {
		return newErr(KindTransport, "set_lcr", err)
	}
	return nil
}

func (d *ch34xDriver) SetControlLines(s usbController, dtr, rts bool) error {
	if d.chipVersion < ch34xMinControlVersion {
		return newErrf(KindUnsupported, "control_lines",
			"chip version %d: legacy control-line protocol not implemented", d.chipVersion)
	}

	var value uint16
	if dtr {
		value |= ch34xSclDTR
	}
	if rts {
		value |= ch34xSclRTS
	}

	if err := ch34xControlOut(s, 0xA4, value, 0); err != nil {
		return newErr(KindTransport, "set_control_lines", err)
	}
	return nil
}

func (d *ch34xDriver) SetBreak(s usbController, assert bool) error {
	buf, err := ch34xControlIn(s, 0x95, 0x1805, 0, 2)
	if err != nil || len(buf) < 2 {
		return newErr(KindTransport, "break_check", errOrEmpty(err))
	}

	b0, b1 := buf[0], buf[1]
	if assert {
		b0 &^= 0x01
		b1 &^= 0x40
	} else {
		b0 |= 0x01
		b1 |= 0x40
	}

	ctl := uint16(b1)<<8 | uint16(b0)
	if err := ch34xControlOut(s, 0x9A, 0x1805, ctl); err != nil {
		return newErr(KindTransport, "break_set", err)
	}
	return nil
}

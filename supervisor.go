/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Lifecycle supervisor
 */

package main

import (
	"context"
	"sync/atomic"
	"time"
)

// BridgeState is the supervisor's state machine position.
type BridgeState int32

const (
	StateStarting BridgeState = iota
	StateWaitingForDevice
	StateOpening
	StateRunning
	StateDisconnected
	StateStopping
)

func (s BridgeState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWaitingForDevice:
		return "waiting_for_device"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SupervisorConfig configures one bridge instance.
type SupervisorConfig struct {
	Addr         DeviceAddress
	Path         string
	Baud         int
	DriverName   string
	NewDriver    func() Driver
	Log          *Logger
	PollInterval time.Duration
}

// Supervisor owns the UsbSession, PtyEndpoint, and TransferPair for
// their entire lifetimes; worker goroutines hold only non-owning
// handles and observe BridgeState to know when to relinquish.
type Supervisor struct {
	cfg SupervisorConfig

	state atomic.Int32

	usbCtx  *UsbContext
	session *UsbSession
	driver  Driver
	pty     *PtyEndpoint

	pair       *TransferPair
	pairCancel context.CancelFunc
	pairErrCh  <-chan error

	stateCh chan BridgeState
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	sup := &Supervisor{cfg: cfg, stateCh: make(chan BridgeState, 16)}
	sup.setState(StateStarting)
	return sup
}

func (s *Supervisor) State() BridgeState { return BridgeState(s.state.Load()) }

func (s *Supervisor) setState(st BridgeState) {
	s.state.Store(int32(st))
	select {
	case s.stateCh <- st:
	default:
	}
}

// StateChanges returns a channel of state transitions, for observers
// such as the status dashboard. It is never closed.
func (s *Supervisor) StateChanges() <-chan BridgeState { return s.stateCh }

// Run blocks until ctx is canceled, driving the state machine from a
// poll loop that ticks every PollInterval (one second by default). The PTY is created once, before
// WaitingForDevice, and destroyed only on the way out, so it survives
// any number of Disconnected excursions without leaking a master fd or
// losing its published path.
func (s *Supervisor) Run(ctx context.Context) error {
	pty, err := openPtyEndpoint(s.cfg.Path)
	if err != nil {
		return err
	}
	s.pty = pty
	s.cfg.Log.Info('+', "pty: published %s -> %s", s.cfg.Path, pty.SlaveName())

	s.setState(StateWaitingForDevice)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	running := true
	for running {
		select {
		case <-ctx.Done():
			running = false
			continue
		case <-ticker.C:
		}

		switch s.State() {
		case StateWaitingForDevice:
			s.tryOpen()
		case StateRunning:
			s.checkEngine()
		case StateDisconnected:
			s.teardownSession()
			s.setState(StateWaitingForDevice)
		}
	}

	s.setState(StateStopping)
	s.shutdown()
	return nil
}

func (s *Supervisor) tryOpen() {
	if s.usbCtx == nil {
		s.usbCtx = openUsbContext()
	}

	dev, ok, err := s.usbCtx.findDevice(s.cfg.Addr)
	if err != nil {
		s.cfg.Log.Error('!', "%s: find_device: %s", s.cfg.Addr, err)
		return
	}
	if !ok {
		return
	}

	s.setState(StateOpening)
	s.cfg.Log.Info('+', "%s: device found, opening", s.cfg.Addr)

	driver := s.cfg.NewDriver()
	ifNum, inEP, outEP := driver.Endpoints()

	session, err := openUsbSession(dev, ifNum, inEP, outEP, s.cfg.Log)
	if err != nil {
		s.cfg.Log.Error('!', "%s: open: %s", s.cfg.Addr, err)
		dev.Close()
		s.setState(StateDisconnected)
		return
	}

	if err := driver.Init(session, s.cfg.Baud); err != nil {
		s.cfg.Log.Error('!', "%s: init: %s", s.cfg.Addr, err)
		session.Close()
		s.setState(StateDisconnected)
		return
	}

	s.session = session
	s.driver = driver

	pairCtx, cancel := context.WithCancel(context.Background())
	pair := newTransferPair(session, s.pty, s.cfg.Log)
	s.pair = pair
	s.pairCancel = cancel
	s.pairErrCh = pair.start(pairCtx)

	s.setState(StateRunning)
	s.cfg.Log.Info('+', "%s: running", s.cfg.Addr)
}

func (s *Supervisor) checkEngine() {
	select {
	case err, ok := <-s.pairErrCh:
		if ok && err != nil {
			s.cfg.Log.Error('!', "%s: transfer: %s", s.cfg.Addr, err)
		}
		s.setState(StateDisconnected)
	default:
	}
}

func (s *Supervisor) teardownSession() {
	s.closeSession()
	s.cfg.Log.Info('-', "%s: disconnected", s.cfg.Addr)
}

func (s *Supervisor) closeSession() {
	if s.pairCancel != nil {
		s.pairCancel()
		s.pairCancel = nil
	}
	if s.pair != nil {
		s.pair.wait()
		s.pair = nil
	}
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	s.driver = nil
}

func (s *Supervisor) shutdown() {
	s.closeSession()
	if s.usbCtx != nil {
		s.usbCtx.Close()
		s.usbCtx = nil
	}
	if s.pty != nil {
		if err := s.pty.Close(); err != nil {
			s.cfg.Log.Error('!', "pty: close: %s", err)
		}
	}
}

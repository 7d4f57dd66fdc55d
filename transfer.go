/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Transfer engine: bidirectional bulk <-> PTY pipe pair
 */

package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// ReadChunkSize is the CH34x endpoint's max packet size. No more than
// one USB frame's worth of data is coalesced into a single OUT
// submission, keeping the bridge latency-fair.
const ReadChunkSize = 32

// bulkInEndpoint and bulkOutEndpoint are the narrow surfaces
// TransferPair needs from *gousb.InEndpoint / *gousb.OutEndpoint.
// Tests substitute fakes to exercise the pipeline without hardware.
type bulkInEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type bulkOutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// ptyReadWriter is the narrow surface TransferPair needs from
// *PtyEndpoint.
type ptyReadWriter interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// TransferPair owns the bulk IN and OUT pipelines for one open
// session. Exactly one OUT transfer is outstanding at any instant:
// runOut is a single goroutine that blocks on the PTY read before
// issuing the next write, so the invariant holds without a lock.
type TransferPair struct {
	in  bulkInEndpoint
	out bulkOutEndpoint
	pty ptyReadWriter
	log *Logger

	outInFlight atomic.Bool
	wg          sync.WaitGroup
}

func newTransferPair(session *UsbSession, pty *PtyEndpoint, log *Logger) *TransferPair {
	return &TransferPair{in: session.in, out: session.out, pty: pty, log: log}
}

// start launches the IN and OUT goroutines. The returned channel
// receives at most one error from each direction; ctx cancellation
// produces no error, just a clean exit of both goroutines.
func (p *TransferPair) start(ctx context.Context) <-chan error {
	errCh := make(chan error, 2)
	p.wg.Add(2)
	go p.runIn(ctx, errCh)
	go p.runOut(ctx, errCh)
	return errCh
}

func (p *TransferPair) wait() { p.wg.Wait() }

// OutInFlight reports whether an OUT bulk transfer is currently
// pending.
func (p *TransferPair) OutInFlight() bool { return p.outInFlight.Load() }

func (p *TransferPair) runIn(ctx context.Context, errCh chan<- error) {
	defer p.wg.Done()

	buf := make([]byte, ReadChunkSize)
	for {
		n, err := p.in.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case errCh <- wrapTransportErr("bulk_in", err):
			default:
			}
			return
		}
		if n > 0 {
			if _, werr := p.pty.Write(buf[:n]); werr != nil {
				p.log.Debug('.', "transfer: pty write: %s (ignored)", werr)
			}
		}
	}
}

func (p *TransferPair) runOut(ctx context.Context, errCh chan<- error) {
	defer p.wg.Done()

	buf := make([]byte, ReadChunkSize)
	for {
		n, err := p.pty.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Slave-side close and similar: swallowed, not fatal.
			continue
		}
		if n == 0 {
			continue
		}

		p.outInFlight.Store(true)
		_, err = p.out.WriteContext(ctx, buf[:n])
		p.outInFlight.Store(false)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case errCh <- wrapTransportErr("bulk_out", err):
			default:
			}
			return
		}
	}
}

package sim

import (
	"errors"
	"sync"

	"firestige.xyz/linkchat/internal/wire"
)

// ErrClosed is returned by Recv once the endpoint has been closed.
var ErrClosed = errors.New("sim: endpoint closed")

// Endpoint is a linklayer.Endpoint backed by a Bus channel. It satisfies
// the same contract a real AF_PACKET socket would (spec.md §6).
type Endpoint struct {
	addr  wire.Address
	bus   *Bus
	inbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// LocalAddr returns the endpoint's registered hardware address.
func (e *Endpoint) LocalAddr() wire.Address { return e.addr }

// Send delivers frame to every other endpoint on the same Bus.
func (e *Endpoint) Send(frame []byte) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	e.bus.deliver(e.addr, frame)
	return nil
}

// Recv blocks until a frame arrives or the endpoint is closed.
func (e *Endpoint) Recv() ([]byte, error) {
	select {
	case frame := <-e.inbox:
		return frame, nil
	case <-e.closed:
		return nil, ErrClosed
	}
}

// Close unregisters the endpoint from its Bus and unblocks any Recv.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.bus.remove(e.addr)
	})
	return nil
}

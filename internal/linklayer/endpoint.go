// Package linklayer defines the link endpoint contract required by the
// Link-Chat core (spec.md §6) and its concrete bindings: a raw AF_PACKET
// socket for real interfaces (subpackage afpacket) and an in-memory
// registry for tests and demo mode, the `demo` config key (subpackage sim).
package linklayer

import "firestige.xyz/linkchat/internal/wire"

// Endpoint is the only capability the Link-Chat core requires from the
// outside world to exchange raw Ethernet frames. Implementations may block
// in Recv; Close must unblock any goroutine parked in Recv by making it
// return an error, mirroring how the teacher's capture handles are closed
// out from under a blocked ReadPacketData call.
type Endpoint interface {
	// LocalAddr returns this endpoint's own hardware address.
	LocalAddr() wire.Address

	// Send transmits a complete Ethernet II frame. Blocking is acceptable.
	Send(frame []byte) error

	// Recv blocks until the next frame arrives, or returns an error once
	// the endpoint has been closed.
	Recv() (frame []byte, err error)

	// Close releases the endpoint and unblocks any pending Recv.
	Close() error
}

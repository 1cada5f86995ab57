// Package sim provides an in-memory linklayer.Endpoint for tests and
// demo mode (the `demo` config key): a broadcast medium implemented with channels instead
// of an AF_PACKET socket, so Link-Chat nodes can be exercised end-to-end
// without CAP_NET_RAW or a real interface. It stands in for
// otus-packet/pkg/capture/demo.go's role of letting the capture pipeline
// be driven outside a privileged environment.
package sim

import (
	"fmt"
	"sync"

	"firestige.xyz/linkchat/internal/wire"
)

// Bus is a shared broadcast medium: every frame Send on one endpoint is
// delivered to every other endpoint registered on the same Bus, whatever
// its destination address. Unlike a real NIC, the bus does not discard
// unicast frames addressed to another node, and the dispatcher does not
// check the destination address either, so every node on a Bus processes
// every frame.
type Bus struct {
	mu        sync.Mutex
	endpoints map[wire.Address]*Endpoint
}

// NewBus creates an empty simulated broadcast segment.
func NewBus() *Bus {
	return &Bus{endpoints: make(map[wire.Address]*Endpoint)}
}

// NewEndpoint registers and returns a new endpoint with the given address
// on this bus. Registering the same address twice is an error.
func (b *Bus) NewEndpoint(addr wire.Address) (*Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.endpoints[addr]; exists {
		return nil, fmt.Errorf("sim: address %s already registered on this bus", addr)
	}

	ep := &Endpoint{
		addr:   addr,
		bus:    b,
		inbox:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	b.endpoints[addr] = ep
	return ep, nil
}

func (b *Bus) deliver(from wire.Address, frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for addr, ep := range b.endpoints {
		if addr == from {
			continue
		}
		select {
		case ep.inbox <- frame:
		case <-ep.closed:
		default:
			// Inbox full: drop, same as a real NIC ring buffer overrun.
		}
	}
}

func (b *Bus) remove(addr wire.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, addr)
}

// Package afpacket binds the Link-Chat linklayer.Endpoint contract to a
// real network interface using a raw AF_PACKET socket, generalizing
// otus-packet/pkg/capture/afpacket.go and internal/source/afpacket/source.go
// from "capture traffic for a parsing pipeline" to "send and receive
// Link-Chat frames on one EtherType".
package afpacket

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/linkchat/internal/wire"
)

// Options tunes the underlying AF_PACKET ring buffer. Defaults match the
// teacher's DefaultCaptureOptions sizing.
type Options struct {
	BufferSize int           // total mmap'd ring buffer size, bytes
	SnapLen    int           // max bytes captured per frame
	PollTimeout time.Duration // poll timeout passed to afpacket.OptPollTimeout
	FanoutID   uint16        // 0 disables fanout
}

// DefaultOptions mirrors otus-packet/pkg/capture.DefaultCaptureOptions.
func DefaultOptions() Options {
	return Options{
		BufferSize:  1024 * 1024,
		SnapLen:     65536,
		PollTimeout: time.Second,
	}
}

// Endpoint is a linklayer.Endpoint backed by a gopacket/afpacket.TPacket
// raw socket filtered to Link-Chat's EtherType at the kernel level.
type Endpoint struct {
	tpacket *afpacket.TPacket
	local   wire.Address
	name    string
}

// Open binds a raw AF_PACKET socket to ifaceName, filtered to frames whose
// EtherType equals wire.EtherType. The frame/block sizing follows the same
// page-size-aligned arithmetic as
// otus-packet/pkg/capture/afpacket.go:computeFrameSizeAndBlocks.
func Open(ifaceName string, opts Options) (*Endpoint, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("afpacket: lookup interface %q: %w", ifaceName, err)
	}
	local, err := wire.ParseAddress(iface.HardwareAddr)
	if err != nil {
		return nil, fmt.Errorf("afpacket: interface %q: %w", ifaceName, err)
	}

	frameSize, blockSize, numBlocks, err := computeFrameSizeAndBlocks(opts)
	if err != nil {
		return nil, fmt.Errorf("afpacket: sizing ring buffer: %w", err)
	}

	tpacket, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket: open TPacket on %q: %w", ifaceName, err)
	}

	if opts.FanoutID > 0 {
		if err := tpacket.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			tpacket.Close()
			return nil, fmt.Errorf("afpacket: set fanout: %w", err)
		}
	}

	raw, err := compileEtherTypeFilter(wire.EtherType)
	if err != nil {
		tpacket.Close()
		return nil, err
	}
	if err := tpacket.SetBPF(raw); err != nil {
		tpacket.Close()
		return nil, fmt.Errorf("afpacket: set BPF filter: %w", err)
	}

	return &Endpoint{tpacket: tpacket, local: local, name: ifaceName}, nil
}

func computeFrameSizeAndBlocks(opts Options) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if opts.SnapLen < pageSize {
		frameSize = pageSize / (pageSize / opts.SnapLen)
	} else {
		frameSize = (opts.SnapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = opts.BufferSize / blockSize
	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size %d too small for frame size %d", opts.BufferSize, frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

// LocalAddr returns the bound interface's hardware address.
func (e *Endpoint) LocalAddr() wire.Address { return e.local }

// Send writes a fully-built Ethernet II frame to the wire.
func (e *Endpoint) Send(frame []byte) error {
	if err := e.tpacket.WritePacketData(frame); err != nil {
		return fmt.Errorf("afpacket: write to %q: %w", e.name, err)
	}
	return nil
}

// Recv blocks until the next matching frame arrives. The kernel-level BPF
// filter already discards non-Link-Chat EtherTypes, so every frame
// returned here is a candidate for the dispatcher.
func (e *Endpoint) Recv() ([]byte, error) {
	data, _, err := e.tpacket.ReadPacketData()
	if err != nil {
		return nil, fmt.Errorf("afpacket: read from %q: %w", e.name, err)
	}
	// ReadPacketData's buffer is reused internally by some capture
	// backends; copy defensively so frames handed to the dispatcher
	// outlive the next read.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the underlying socket, unblocking any pending Recv.
func (e *Endpoint) Close() error {
	e.tpacket.Close()
	return nil
}

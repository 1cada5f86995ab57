// Package sender implements the Link-Chat reliable transmit state
// machine: fragmentation, the outstanding-fragment table, per-fragment
// stop-and-wait with bounded retransmission, and a background sweeper.
// The outstanding table is one owned structure mutated from three call
// sites (foreground wait loop, sweeper, OnAck) behind a single mutex,
// the same discipline internal/task.TaskManager applies to its task map
// and internal/task.FlowRegistry applies to its flow map.
package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/wire"
)

// DefaultTimeout is the per-fragment stop-and-wait and sweeper
// retransmission deadline used when Options.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// DefaultSweepInterval is the period of the background retransmission
// sweeper used when Options.SweepInterval is zero.
const DefaultSweepInterval = 500 * time.Millisecond

// pollInterval is how often the foreground wait loop checks the
// outstanding table for ACK-detected removal. Not configurable: it is an
// implementation detail of the wait loop, not a protocol parameter.
const pollInterval = 50 * time.Millisecond

// Options tunes a Sender's retry behavior. Zero fields fall back to the
// spec.md protocol defaults (Timeout=2s, SweepInterval=500ms,
// MaxRetries=8); callers driven by config (see
// internal/config.TransportConfig) pass their own parsed values so the
// configured knobs actually reach the transmit loop instead of sitting
// unused.
type Options struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	MaxRetries    int
}

// DefaultOptions returns the spec.md protocol defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		SweepInterval: DefaultSweepInterval,
		MaxRetries:    wire.MaxRetries,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = wire.MaxRetries
	}
	return o
}

// outstanding is one in-flight fragment awaiting ACK or abandonment.
type outstanding struct {
	frame     []byte
	lastSend  time.Time
	retries   int
}

// ErrNoDestination is returned by SendBlob/SendChat when called with the
// zero address, Link-Chat's precondition-failure case for invalid input.
var ErrNoDestination = fmt.Errorf("sender: no destination address set")

// ErrEmptyBlob is returned when SendBlob is given a zero-length payload;
// the spec permits rejecting empty blobs outright (see §9).
var ErrEmptyBlob = fmt.Errorf("sender: refusing to send an empty blob")

// Sender fragments payloads, tracks outstanding fragments, and retries
// them until acknowledged or abandoned.
type Sender struct {
	link linklayer.Endpoint
	log  logrus.FieldLogger

	callMu sync.Mutex // serializes send_* calls, per spec §4.3

	mu          sync.Mutex
	outstanding map[uint32]*outstanding // key: fileID<<16 | fragIndex
	nextFileID  uint32

	timeout       time.Duration
	sweepInterval time.Duration
	maxRetries    int

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a Sender transmitting over link, tuned by opts (see
// Options; DefaultOptions() for the spec.md protocol defaults).
func New(link linklayer.Endpoint, log logrus.FieldLogger, opts Options) *Sender {
	opts = opts.withDefaults()
	return &Sender{
		link:          link,
		log:           log,
		outstanding:   make(map[uint32]*outstanding),
		nextFileID:    1,
		timeout:       opts.Timeout,
		sweepInterval: opts.SweepInterval,
		maxRetries:    opts.MaxRetries,
		sweepStop:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
}

func key(fileID, fragIndex uint16) uint32 {
	return uint32(fileID)<<16 | uint32(fragIndex)
}

// StartSweeper launches the background retransmission sweeper, which
// retransmits any outstanding fragment idle longer than Timeout,
// independently of any foreground wait loop.
func (s *Sender) StartSweeper() {
	go s.sweepLoop()
}

// Close stops the sweeper. It does not close the underlying link.
func (s *Sender) Close() {
	close(s.sweepStop)
	<-s.sweepDone
}

func (s *Sender) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce snapshots expired entries under the lock, then retransmits
// outside the lock so a syscall is never made while holding it.
func (s *Sender) sweepOnce() {
	now := time.Now()

	type retransmit struct {
		key   uint32
		frame []byte
	}
	var toSend []retransmit
	var abandoned int

	s.mu.Lock()
	for k, o := range s.outstanding {
		if now.Sub(o.lastSend) <= s.timeout {
			continue
		}
		if o.retries >= s.maxRetries {
			delete(s.outstanding, k)
			abandoned++
			continue
		}
		o.retries++
		o.lastSend = now
		toSend = append(toSend, retransmit{key: k, frame: o.frame})
	}
	s.mu.Unlock()

	for i := 0; i < abandoned; i++ {
		metrics.FragmentsAbandonedTotal.Inc()
	}
	for _, r := range toSend {
		if err := s.link.Send(r.frame); err != nil {
			s.log.WithError(err).Warn("sender: sweeper retransmit failed")
			continue
		}
		metrics.FragmentsSentTotal.WithLabelValues("retransmit").Inc()
	}
	metrics.OutstandingFragments.Set(float64(s.outstandingCount()))
}

func (s *Sender) outstandingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// SendChat UTF-8 encodes text and either sends it fire-and-forget as a
// single CHAT frame (file_id=0, no retransmission tracking) when it fits
// in one fragment, or delegates to SendBlob with msg_type=CHAT, per
// spec.md's deliberate chat fire-and-forget/reliable asymmetry.
func (s *Sender) SendChat(ctx context.Context, text string, dst wire.Address) error {
	if dst.IsZero() {
		return ErrNoDestination
	}
	payload := []byte(text)
	if len(payload) <= wire.MTU {
		s.callMu.Lock()
		defer s.callMu.Unlock()

		withCRC := wire.AppendCRC(payload)
		h := wire.Header{
			FileID:     0,
			TotalFrags: 1,
			FragIndex:  0,
			Flags:      wire.FlagIsFirst | wire.FlagIsLast,
			MsgType:    wire.MsgChat,
			PayloadLen: uint16(len(withCRC)),
		}
		frame := wire.BuildFrame(dst, s.link.LocalAddr(), wire.EtherType, append(wire.PackHeader(h), withCRC...))
		if err := s.link.Send(frame); err != nil {
			return fmt.Errorf("sender: send chat: %w", err)
		}
		metrics.FragmentsSentTotal.WithLabelValues("initial").Inc()
		metrics.ChatDeliveredTotal.Inc()
		return nil
	}
	return s.sendReliable(ctx, payload, dst, wire.MsgChat)
}

// SendBlob reliably delivers data to dst, fragmenting as needed and
// waiting for each fragment's ACK before sending the next (stop-and-wait).
func (s *Sender) SendBlob(ctx context.Context, data []byte, dst wire.Address) error {
	if dst.IsZero() {
		return ErrNoDestination
	}
	if len(data) == 0 {
		return ErrEmptyBlob
	}
	return s.sendReliable(ctx, data, dst, wire.MsgFileChunk)
}

func (s *Sender) sendReliable(ctx context.Context, data []byte, dst wire.Address, msgType wire.MsgType) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	fileID, err := s.allocateFileID()
	if err != nil {
		return err
	}

	fragments := fragment(data, wire.MTU)
	total := len(fragments)

	for i, payload := range fragments {
		var flags wire.Flags
		if i == 0 {
			flags |= wire.FlagIsFirst
		}
		if i == total-1 {
			flags |= wire.FlagIsLast
		}

		withCRC := wire.AppendCRC(payload)
		h := wire.Header{
			FileID:     fileID,
			TotalFrags: uint16(total),
			FragIndex:  uint16(i),
			Flags:      flags,
			MsgType:    msgType,
			PayloadLen: uint16(len(withCRC)),
		}
		frame := wire.BuildFrame(dst, s.link.LocalAddr(), wire.EtherType, append(wire.PackHeader(h), withCRC...))

		k := key(fileID, uint16(i))
		s.mu.Lock()
		s.outstanding[k] = &outstanding{frame: frame, lastSend: time.Now(), retries: 0}
		s.mu.Unlock()
		metrics.OutstandingFragments.Set(float64(s.outstandingCount()))

		if err := s.link.Send(frame); err != nil {
			return fmt.Errorf("sender: send fragment %d/%d: %w", i, total, err)
		}
		metrics.FragmentsSentTotal.WithLabelValues("initial").Inc()

		if err := s.waitForAck(ctx, k, frame); err != nil {
			return err
		}
	}

	if msgType == wire.MsgChat {
		metrics.ChatDeliveredTotal.Inc()
	}
	return nil
}

// waitForAck polls the outstanding table until key is removed (ACKed) or
// retransmits/abandons it on timeout, per the foreground transmit loop in
// spec.md §4.3 step 4.
func (s *Sender) waitForAck(ctx context.Context, k uint32, frame []byte) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s.mu.Lock()
		o, ok := s.outstanding[k]
		if !ok {
			s.mu.Unlock()
			return nil // ACKed
		}
		if time.Since(o.lastSend) < s.timeout {
			s.mu.Unlock()
			continue
		}
		if o.retries >= s.maxRetries {
			delete(s.outstanding, k)
			s.mu.Unlock()
			metrics.FragmentsAbandonedTotal.Inc()
			metrics.OutstandingFragments.Set(float64(s.outstandingCount()))
			s.log.WithField("key", k).Warn("sender: fragment abandoned after max retries")
			return nil // advance to next fragment regardless, per spec
		}
		o.retries++
		o.lastSend = time.Now()
		s.mu.Unlock()

		if err := s.link.Send(frame); err != nil {
			s.log.WithError(err).Warn("sender: foreground retransmit failed")
			continue
		}
		metrics.FragmentsSentTotal.WithLabelValues("retransmit").Inc()
	}
}

// OnAck removes the outstanding entry for the acknowledged fragment, if
// present. It is safe to call for an unknown or already-removed key.
func (s *Sender) OnAck(h wire.Header) {
	k := key(h.FileID, h.FragIndex)
	s.mu.Lock()
	_, existed := s.outstanding[k]
	delete(s.outstanding, k)
	count := len(s.outstanding)
	s.mu.Unlock()

	if existed {
		metrics.FragmentsAckedTotal.Inc()
	}
	metrics.OutstandingFragments.Set(float64(count))
}

// allocateFileID returns the next transfer identifier, skipping 0 and
// detecting collision with an outstanding transfer rather than silently
// wrapping over one (see DESIGN.md's decision on file_id wraparound).
func (s *Sender) allocateFileID() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempts := 0; attempts < 1<<16; attempts++ {
		id := uint16(s.nextFileID)
		s.nextFileID++
		if s.nextFileID > 0xFFFF {
			s.nextFileID = 1
		}
		if id == 0 {
			continue
		}
		if !s.hasOutstandingLocked(id) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("sender: file_id space exhausted, all values have outstanding transfers")
}

func (s *Sender) hasOutstandingLocked(fileID uint16) bool {
	prefix := uint32(fileID) << 16
	for k := range s.outstanding {
		if k&0xFFFF0000 == prefix {
			return true
		}
	}
	return false
}

// fragment slices data into chunks of at most mtu bytes each, in order.
// Total count is ceil(len(data)/mtu), at least 1 for non-empty data.
func fragment(data []byte, mtu int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for off := 0; off < len(data); off += mtu {
		end := off + mtu
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end])
	}
	return out
}

// Package receiver implements Link-Chat reassembly: CRC verification,
// per-transfer buffers keyed by file_id, duplicate-fragment suppression,
// and ACK emission. Reassembly buffers are owned by a single goroutine
// (the dispatcher's read loop), so — as the spec requires and as a
// single-pipeline-goroutine design in the teacher's internal/pipeline
// would — no lock guards them.
package receiver

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/wire"
)

// StaleTimeout bounds how long an incomplete reassembly buffer may sit
// idle before Evict discards it. The original leaks incomplete transfers
// forever (spec.md §9); this is the supplement the spec invites a
// production implementation to add.
const StaleTimeout = 5 * time.Minute

// transfer is one in-progress reassembly.
type transfer struct {
	slots      [][]byte // nil until the slot's fragment has arrived
	filled     int
	lastActive time.Time
}

// Receiver reassembles fragmented transfers and emits ACKs over link.
type Receiver struct {
	link      linklayer.Endpoint
	log       logrus.FieldLogger
	transfers map[uint16]*transfer
}

// New creates a Receiver that ACKs over link.
func New(link linklayer.Endpoint, log logrus.FieldLogger) *Receiver {
	return &Receiver{
		link:      link,
		log:       log,
		transfers: make(map[uint16]*transfer),
	}
}

// OnFragment processes one data fragment's header and payload-with-CRC,
// returning the fully reassembled blob iff this fragment completes its
// transfer. Must only be called from the single owning goroutine.
func (r *Receiver) OnFragment(h wire.Header, payloadWithCRC []byte, src wire.Address) ([]byte, error) {
	ok, payload, err := wire.VerifyAndStrip(payloadWithCRC)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if !ok {
		metrics.CRCFailuresTotal.Inc()
		r.log.WithField("file_id", h.FileID).WithField("frag", h.FragIndex).Debug("receiver: CRC mismatch, dropping fragment")
		return nil, nil
	}

	t, exists := r.transfers[h.FileID]
	if !exists {
		t = &transfer{slots: make([][]byte, h.TotalFrags)}
		r.transfers[h.FileID] = t
		metrics.ReassemblyBuffersActive.Set(float64(len(r.transfers)))
	}
	t.lastActive = time.Now()

	if int(h.FragIndex) >= len(t.slots) {
		return nil, fmt.Errorf("receiver: frag_index %d out of range for total_frags %d", h.FragIndex, len(t.slots))
	}

	if t.slots[h.FragIndex] != nil {
		// Duplicate: the sender may have missed our prior ACK. Re-emit it
		// and return without touching the stored payload.
		metrics.FragmentsDuplicateTotal.Inc()
		if err := r.sendAck(h, src); err != nil {
			return nil, err
		}
		return nil, nil
	}

	t.slots[h.FragIndex] = payload
	t.filled++
	if err := r.sendAck(h, src); err != nil {
		return nil, err
	}

	if t.filled < len(t.slots) {
		return nil, nil
	}

	assembled := make([]byte, 0, totalLen(t.slots))
	for _, slot := range t.slots {
		assembled = append(assembled, slot...)
	}
	delete(r.transfers, h.FileID)
	metrics.ReassemblyBuffersActive.Set(float64(len(r.transfers)))
	metrics.BlobsDeliveredTotal.Inc()
	return assembled, nil
}

func totalLen(slots [][]byte) int {
	n := 0
	for _, s := range slots {
		n += len(s)
	}
	return n
}

func (r *Receiver) sendAck(h wire.Header, src wire.Address) error {
	ack := wire.Header{
		FileID:    h.FileID,
		FragIndex: h.FragIndex,
		MsgType:   wire.MsgAck,
	}
	frame := wire.BuildFrame(src, r.link.LocalAddr(), wire.EtherType, wire.PackHeader(ack))
	if err := r.link.Send(frame); err != nil {
		return fmt.Errorf("receiver: send ack: %w", err)
	}
	return nil
}

// Evict drops reassembly buffers idle longer than StaleTimeout, bounding
// the memory an abandoned transfer can permanently occupy.
func (r *Receiver) Evict() {
	cutoff := time.Now().Add(-StaleTimeout)
	for id, t := range r.transfers {
		if t.lastActive.Before(cutoff) {
			delete(r.transfers, id)
			r.log.WithField("file_id", id).Warn("receiver: evicted stale reassembly buffer")
		}
	}
	metrics.ReassemblyBuffersActive.Set(float64(len(r.transfers)))
}

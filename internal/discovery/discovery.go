// Package discovery implements the Link-Chat neighbor discovery protocol:
// broadcast probes, unicast replies, and a TTL-pruned neighbor set.
// Generalizes the map-behind-a-lock shape of internal/task.FlowRegistry
// (sync-guarded map, counted on mutation) from per-flow dialog state to
// per-neighbor last-seen timestamps, adding the read-time TTL eviction the
// flow registry does not need.
package discovery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/wire"
)

// DefaultTTL is the neighbor liveness window used when New is called with
// a zero ttl: an entry not refreshed by a REPLY within ttl is pruned from
// Neighbors.
const DefaultTTL = 300 * time.Second

// Discovery tracks known neighbors and answers/emits DISCOVERY and REPLY
// frames over a linklayer.Endpoint.
type Discovery struct {
	mu       sync.RWMutex
	lastSeen map[wire.Address]time.Time
	link     linklayer.Endpoint
	log      logrus.FieldLogger
	now      func() time.Time
	ttl      time.Duration
}

// New creates a Discovery bound to link, used both to broadcast probes and
// to unicast replies back to probers. A zero ttl falls back to DefaultTTL,
// the spec.md protocol default; callers driven by config (see
// internal/config.DiscoveryConfig.TTL) pass their own parsed duration.
func New(link linklayer.Endpoint, log logrus.FieldLogger, ttl time.Duration) *Discovery {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Discovery{
		lastSeen: make(map[wire.Address]time.Time),
		link:     link,
		log:      log,
		now:      time.Now,
		ttl:      ttl,
	}
}

// Probe broadcasts a header-only DISCOVERY frame. Callers are expected to
// wait roughly 600ms before reading Neighbors for replies to arrive; that
// allowance is the caller's responsibility, not Discovery's.
func (d *Discovery) Probe() error {
	h := wire.Header{MsgType: wire.MsgDiscovery}
	frame := wire.BuildFrame(wire.Broadcast, d.link.LocalAddr(), wire.EtherType, wire.PackHeader(h))
	if err := d.link.Send(frame); err != nil {
		return err
	}
	d.log.Debug("discovery: sent probe")
	return nil
}

// OnFrame reacts to a parsed DISCOVERY or REPLY header arriving from src.
// It is a no-op (returns nil) for any other msg_type; the dispatcher is
// responsible for routing only discovery traffic here.
func (d *Discovery) OnFrame(src wire.Address, h wire.Header) error {
	switch h.MsgType {
	case wire.MsgDiscovery:
		return d.reply(src)
	case wire.MsgReply:
		d.mu.Lock()
		d.lastSeen[src] = d.now()
		count := len(d.lastSeen)
		d.mu.Unlock()
		metrics.NeighborsKnown.Set(float64(count))
		d.log.WithField("peer", src).Debug("discovery: recorded reply")
	}
	return nil
}

func (d *Discovery) reply(src wire.Address) error {
	h := wire.Header{MsgType: wire.MsgReply}
	frame := wire.BuildFrame(src, d.link.LocalAddr(), wire.EtherType, wire.PackHeader(h))
	return d.link.Send(frame)
}

// Neighbors returns every address whose last REPLY arrived within ttl,
// pruning everything older as a side effect.
func (d *Discovery) Neighbors() []wire.Address {
	cutoff := d.now().Add(-d.ttl)

	d.mu.Lock()
	for addr, seen := range d.lastSeen {
		if seen.Before(cutoff) {
			delete(d.lastSeen, addr)
		}
	}
	out := make([]wire.Address, 0, len(d.lastSeen))
	for addr := range d.lastSeen {
		out = append(out, addr)
	}
	count := len(d.lastSeen)
	d.mu.Unlock()

	metrics.NeighborsKnown.Set(float64(count))
	return out
}

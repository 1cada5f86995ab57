// Package dispatcher implements the Link-Chat dispatcher: a single
// long-running loop reading frames from a linklayer.Endpoint and routing
// them by msg_type to Discovery, Receiver or Sender. Grounded on
// otus-packet/pkg/capture/manager.go's CaptureManager read-loop-and-route
// shape, generalized from "hand frames to a parser pipeline" to
// "hand Link-Chat frames to whichever component owns their msg_type".
package dispatcher

import (
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/receiver"
	"firestige.xyz/linkchat/internal/sender"
	"firestige.xyz/linkchat/internal/sink"
	"firestige.xyz/linkchat/internal/wire"
)

// Dispatcher owns the blocking read loop and routes parsed frames.
type Dispatcher struct {
	link      linklayer.Endpoint
	discovery *discovery.Discovery
	receiver  *receiver.Receiver
	sender    *sender.Sender
	sink      sink.Sink
	log       logrus.FieldLogger
}

// New creates a Dispatcher wiring the four core components together.
func New(link linklayer.Endpoint, disc *discovery.Discovery, recv *receiver.Receiver, send *sender.Sender, dest sink.Sink, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{link: link, discovery: disc, receiver: recv, sender: send, sink: dest, log: log}
}

// Run blocks, reading and routing frames until link.Recv returns an error
// (the canonical signal that the endpoint was closed for shutdown). Any
// parse failure at any layer drops the single offending frame; Run never
// exits on malformed input, only on link closure.
func (d *Dispatcher) Run() error {
	for {
		frame, err := d.link.Recv()
		if err != nil {
			return err
		}
		d.handle(frame)
	}
}

func (d *Dispatcher) handle(frame []byte) {
	_, src, ethertype, payload, err := wire.ParseFrame(frame)
	if err != nil {
		return
	}
	if ethertype != wire.EtherType {
		return
	}

	h, remainder, err := wire.UnpackHeader(payload)
	if err != nil {
		return
	}
	if len(remainder) < int(h.PayloadLen) {
		return // truncated fragment
	}
	body := remainder[:h.PayloadLen]

	switch h.MsgType {
	case wire.MsgDiscovery, wire.MsgReply:
		if err := d.discovery.OnFrame(src, h); err != nil {
			d.log.WithError(err).Warn("dispatcher: discovery handling failed")
		}

	case wire.MsgChat:
		d.handleChat(h, body, src)

	case wire.MsgFileChunk:
		blob, err := d.receiver.OnFragment(h, body, src)
		if err != nil {
			d.log.WithError(err).WithField("src", src).Warn("dispatcher: receiver error")
			d.sink.OnError(err.Error())
			return
		}
		if blob != nil {
			d.sink.OnBlob(src, blob)
		}

	case wire.MsgAck:
		d.sender.OnAck(h)
	}
}

// handleChat covers both chat delivery modes: file_id=0 single-fragment
// fire-and-forget frames are decoded directly; any other file_id enters
// the same reassembly path as a blob transfer (send_blob with
// msg_type=CHAT), and the completed bytes are decoded once reassembled.
func (d *Dispatcher) handleChat(h wire.Header, body []byte, src wire.Address) {
	if h.FileID == 0 {
		ok, payload, err := wire.VerifyAndStrip(body)
		if err != nil {
			return
		}
		if !ok {
			metrics.CRCFailuresTotal.Inc()
			return
		}
		d.sink.OnChat(src, decodeUTF8(payload))
		return
	}

	blob, err := d.receiver.OnFragment(h, body, src)
	if err != nil {
		d.log.WithError(err).WithField("src", src).Warn("dispatcher: receiver error on chat fragment")
		d.sink.OnError(err.Error())
		return
	}
	if blob != nil {
		d.sink.OnChat(src, decodeUTF8(blob))
	}
}

// decodeUTF8 mirrors spec.md §4.6: decode as UTF-8, replacing invalid
// bytes rather than rejecting the message.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var out []rune
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

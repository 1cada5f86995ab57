package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/linklayer/sim"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/receiver"
	"firestige.xyz/linkchat/internal/sender"
	"firestige.xyz/linkchat/internal/sink"
	"firestige.xyz/linkchat/internal/wire"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type node struct {
	ep   linklayer.Endpoint
	disc *discovery.Discovery
	recv *receiver.Receiver
	send *sender.Sender
	sink *sink.ChannelSink
	disp *Dispatcher
}

func newNode(ep linklayer.Endpoint) *node {
	return newNodeWithSenderOptions(ep, sender.DefaultOptions())
}

// newNodeWithSenderOptions is newNode with a caller-chosen sender.Options,
// used by tests that need a short Timeout/SweepInterval to observe a
// retransmission within the test's own deadline.
func newNodeWithSenderOptions(ep linklayer.Endpoint, opts sender.Options) *node {
	log := quietLog()
	n := &node{
		ep:   ep,
		disc: discovery.New(ep, log, discovery.DefaultTTL),
		recv: receiver.New(ep, log),
		send: sender.New(ep, log, opts),
		sink: sink.NewChannelSink(32),
	}
	n.disp = New(ep, n.disc, n.recv, n.send, n.sink, log)
	n.send.StartSweeper()
	go n.disp.Run()
	return n
}

// lossyEndpoint wraps an Endpoint and silently drops the first dropSends
// calls to Send, simulating a frame lost on the medium (e.g. an ACK that
// never reaches the sender). Recv/LocalAddr/Close pass straight through via
// the embedded Endpoint.
type lossyEndpoint struct {
	linklayer.Endpoint
	mu        sync.Mutex
	dropSends int
}

func (l *lossyEndpoint) Send(frame []byte) error {
	l.mu.Lock()
	if l.dropSends > 0 {
		l.dropSends--
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.Endpoint.Send(frame)
}

func (n *node) close() {
	n.send.Close()
	n.ep.Close()
}

func newTwoNodes(t *testing.T) (a, b *node) {
	t.Helper()
	bus := sim.NewBus()
	epA, err := bus.NewEndpoint(wire.MustParseAddressString("aa:aa:aa:aa:aa:01"))
	require.NoError(t, err)
	epB, err := bus.NewEndpoint(wire.MustParseAddressString("bb:bb:bb:bb:bb:01"))
	require.NoError(t, err)
	return newNode(epA), newNode(epB)
}

func TestScenario1SingleFragmentChat(t *testing.T) {
	a, b := newTwoNodes(t)
	defer a.close()
	defer b.close()

	require.NoError(t, a.send.SendChat(context.Background(), "hi", b.ep.LocalAddr()))

	select {
	case ev := <-b.sink.Events():
		require.NotNil(t, ev.Chat)
		require.Equal(t, "hi", ev.Chat.Text)
		require.Equal(t, a.ep.LocalAddr(), ev.Chat.Src)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ChatReceived")
	}
}

func TestScenario2TwoFragmentBlobLossless(t *testing.T) {
	a, b := newTwoNodes(t)
	defer a.close()
	defer b.close()

	data := make([]byte, 2000)
	for i := range data {
		data[i] = byte(i % 256)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.send.SendBlob(ctx, data, b.ep.LocalAddr()))

	select {
	case ev := <-b.sink.Events():
		require.NotNil(t, ev.Blob)
		require.Equal(t, data, ev.Blob.Data)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for BlobReceived")
	}
}

// TestScenario3LostAckRetransmission reproduces spec.md §8 scenario 3: a
// single-fragment blob (reliable, ACKed path, unlike fire-and-forget chat)
// whose first ACK is dropped. A must time out, retransmit the one
// fragment, and complete delivery exactly once after B's second ACK gets
// through.
func TestScenario3LostAckRetransmission(t *testing.T) {
	bus := sim.NewBus()
	epA, err := bus.NewEndpoint(wire.MustParseAddressString("aa:aa:aa:aa:aa:03"))
	require.NoError(t, err)
	rawB, err := bus.NewEndpoint(wire.MustParseAddressString("bb:bb:bb:bb:bb:03"))
	require.NoError(t, err)

	// B's first outgoing frame is the ACK for A's single fragment; dropping
	// it forces A through exactly one retransmission before the real ACK
	// gets through.
	lossyB := &lossyEndpoint{Endpoint: rawB, dropSends: 1}

	fastOpts := sender.Options{Timeout: 100 * time.Millisecond, SweepInterval: 20 * time.Millisecond}
	a := newNodeWithSenderOptions(epA, fastOpts)
	b := newNode(lossyB)
	defer a.close()
	defer b.close()

	retransmitsBefore := testutil.ToFloat64(metrics.FragmentsSentTotal.WithLabelValues("retransmit"))

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.send.SendBlob(ctx, data, b.ep.LocalAddr()))

	select {
	case ev := <-b.sink.Events():
		require.NotNil(t, ev.Blob)
		require.Equal(t, data, ev.Blob.Data)
		require.Equal(t, a.ep.LocalAddr(), ev.Blob.Src)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BlobReceived")
	}

	select {
	case <-b.sink.Events():
		t.Fatal("duplicate delivery: B's re-emitted ACK for the retried fragment must not redeliver the blob")
	case <-time.After(200 * time.Millisecond):
	}

	retransmitsAfter := testutil.ToFloat64(metrics.FragmentsSentTotal.WithLabelValues("retransmit"))
	require.Equal(t, retransmitsBefore+1, retransmitsAfter,
		"expected exactly one retransmission after the dropped ACK")
	require.Zero(t, testutil.ToFloat64(metrics.OutstandingFragments),
		"fragment must be marked acked and removed once the retried ACK arrives")
}

// TestScenario5DiscoveryRoundTrip covers the probe/reply half of scenario 5;
// TTL expiry is covered by discovery's TestDiscoveryNeighborTTL, which can
// control the clock.
func TestScenario5DiscoveryRoundTrip(t *testing.T) {
	a, b := newTwoNodes(t)
	defer a.close()
	defer b.close()

	require.NoError(t, a.disc.Probe())

	require.Eventually(t, func() bool {
		return len(a.disc.Neighbors()) == 1
	}, 600*time.Millisecond, 5*time.Millisecond)

	neighbors := a.disc.Neighbors()
	require.Equal(t, []wire.Address{b.ep.LocalAddr()}, neighbors)
}

func TestScenario6OutOfOrderReassembly(t *testing.T) {
	a, b := newTwoNodes(t)
	defer a.close()
	defer b.close()

	frag0 := []byte("AAA")
	frag1 := []byte("BBB")
	frag2 := []byte("CCC")

	send := func(idx int, data []byte, first, last bool) {
		var flags wire.Flags
		if first {
			flags |= wire.FlagIsFirst
		}
		if last {
			flags |= wire.FlagIsLast
		}
		h := wire.Header{FileID: 99, TotalFrags: 3, FragIndex: uint16(idx), Flags: flags, MsgType: wire.MsgFileChunk}
		withCRC := wire.AppendCRC(data)
		h.PayloadLen = uint16(len(withCRC))
		frame := wire.BuildFrame(b.ep.LocalAddr(), a.ep.LocalAddr(), wire.EtherType, append(wire.PackHeader(h), withCRC...))
		require.NoError(t, a.ep.Send(frame))
	}

	// Arrival order: 1, 0, 2.
	send(1, frag1, false, false)
	send(0, frag0, true, false)
	send(2, frag2, false, true)

	select {
	case ev := <-b.sink.Events():
		require.NotNil(t, ev.Blob)
		require.Equal(t, "AAABBBCCC", string(ev.Blob.Data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for out-of-order BlobReceived")
	}
}

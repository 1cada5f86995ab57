package discovery

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/linklayer/sim"
	"firestige.xyz/linkchat/internal/wire"
)

func newPair(t *testing.T) (a, b *Discovery, epA, epB linklayer.Endpoint) {
	t.Helper()
	bus := sim.NewBus()

	epA, err := bus.NewEndpoint(wire.MustParseAddressString("aa:aa:aa:aa:aa:01"))
	require.NoError(t, err)
	epB, err = bus.NewEndpoint(wire.MustParseAddressString("bb:bb:bb:bb:bb:01"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return New(epA, log, DefaultTTL), New(epB, log, DefaultTTL), epA, epB
}

// pump delivers every frame arriving on ep to handler until stop is closed.
func pump(ep linklayer.Endpoint, handler func(frame []byte), stop <-chan struct{}) {
	for {
		frame, err := ep.Recv()
		if err != nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		handler(frame)
	}
}

func route(d *Discovery) func(frame []byte) {
	return func(frame []byte) {
		_, src, ethertype, payload, err := wire.ParseFrame(frame)
		if err != nil || ethertype != wire.EtherType {
			return
		}
		h, _, err := wire.UnpackHeader(payload)
		if err != nil {
			return
		}
		_ = d.OnFrame(src, h)
	}
}

func TestDiscoveryRoundTrip(t *testing.T) {
	a, b, epA, epB := newPair(t)

	stop := make(chan struct{})
	defer close(stop)
	go pump(epB, route(b), stop)
	go pump(epA, route(a), stop)

	require.NoError(t, a.Probe())

	require.Eventually(t, func() bool {
		return len(a.Neighbors()) == 1
	}, time.Second, 5*time.Millisecond)

	neighbors := a.Neighbors()
	require.Len(t, neighbors, 1)
	require.Equal(t, epB.LocalAddr(), neighbors[0])
}

func TestDiscoveryNeighborTTL(t *testing.T) {
	d := New(&noopEndpoint{local: wire.MustParseAddressString("aa:aa:aa:aa:aa:01")}, quietLogger(), DefaultTTL)

	peer := wire.MustParseAddressString("bb:bb:bb:bb:bb:01")
	base := time.Now()
	d.now = func() time.Time { return base }

	require.NoError(t, d.OnFrame(peer, wire.Header{MsgType: wire.MsgReply}))
	require.Equal(t, []wire.Address{peer}, d.Neighbors())

	d.now = func() time.Time { return base.Add(299 * time.Second) }
	require.Equal(t, []wire.Address{peer}, d.Neighbors())

	d.now = func() time.Time { return base.Add(301 * time.Second) }
	require.Empty(t, d.Neighbors())
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// noopEndpoint discards every Send and never yields a Recv; used for
// TTL tests that never exercise the wire.
type noopEndpoint struct {
	local wire.Address
}

func (n *noopEndpoint) LocalAddr() wire.Address { return n.local }
func (n *noopEndpoint) Send([]byte) error       { return nil }
func (n *noopEndpoint) Recv() ([]byte, error)    { select {} }
func (n *noopEndpoint) Close() error             { return nil }

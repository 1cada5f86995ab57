package sink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"firestige.xyz/linkchat/internal/wire"
)

func TestChannelSinkDelivers(t *testing.T) {
	s := NewChannelSink(4)
	addr := wire.MustParseAddressString("aa:bb:cc:dd:ee:ff")

	s.OnChat(addr, "hi")
	s.OnBlob(addr, []byte{1, 2, 3})
	s.OnError("boom")

	ev := <-s.Events()
	require.NotNil(t, ev.Chat)
	require.Equal(t, "hi", ev.Chat.Text)

	ev = <-s.Events()
	require.NotNil(t, ev.Blob)
	require.Equal(t, []byte{1, 2, 3}, ev.Blob.Data)

	ev = <-s.Events()
	require.NotNil(t, ev.Err)
	require.Equal(t, "boom", ev.Err.Message)
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	s := NewChannelSink(1)
	addr := wire.MustParseAddressString("aa:bb:cc:dd:ee:ff")

	s.OnChat(addr, "first")
	s.OnChat(addr, "second")

	ev := <-s.Events()
	require.Equal(t, "second", ev.Chat.Text)
}

type recordingSink struct {
	chats int
	blobs int
	errs  int
}

func (r *recordingSink) OnChat(wire.Address, string) { r.chats++ }
func (r *recordingSink) OnBlob(wire.Address, []byte) { r.blobs++ }
func (r *recordingSink) OnError(string)              { r.errs++ }

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a, b)

	addr := wire.MustParseAddressString("aa:bb:cc:dd:ee:ff")
	m.OnChat(addr, "hi")
	m.OnBlob(addr, []byte{1})
	m.OnError("x")

	require.Equal(t, 1, a.chats)
	require.Equal(t, 1, a.blobs)
	require.Equal(t, 1, a.errs)
	require.Equal(t, 1, b.chats)
}

package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// EtherType is the private EtherType value reserved for Link-Chat frames.
// Any frame carrying a different value must be ignored by the dispatcher.
const EtherType uint16 = 0x88B5

// HeaderLen is the fixed size in bytes of a packed Header.
const HeaderLen = 10

// CRCLen is the size in bytes of the trailer appended to data fragments.
const CRCLen = 4

// MTU is the maximum fragment payload size (data only, before the CRC
// trailer) that keeps header+payload+CRC inside a 1500-byte Ethernet MTU.
const MTU = 1472

// MaxRetries is the number of retransmissions attempted per fragment
// before the sender abandons it.
const MaxRetries = 8

// MsgType identifies the kind of payload a Header describes.
type MsgType uint8

const (
	MsgChat      MsgType = 1
	MsgFileChunk MsgType = 2
	MsgAck       MsgType = 3
	MsgDiscovery MsgType = 4
	MsgReply     MsgType = 5
)

func (t MsgType) String() string {
	switch t {
	case MsgChat:
		return "CHAT"
	case MsgFileChunk:
		return "FILE_CHUNK"
	case MsgAck:
		return "ACK"
	case MsgDiscovery:
		return "DISCOVERY"
	case MsgReply:
		return "REPLY"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// Flags are the bit-0..3 fields of the header's flags byte.
type Flags uint8

const (
	FlagIsFirst    Flags = 1 << 0
	FlagIsLast     Flags = 1 << 1
	FlagRetrans    Flags = 1 << 2
	FlagCompressed Flags = 1 << 3 // reserved, never set
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the 10-byte Link-Chat protocol header, fields in the order
// they appear on the wire.
type Header struct {
	FileID     uint16
	TotalFrags uint16
	FragIndex  uint16
	Flags      Flags
	MsgType    MsgType
	PayloadLen uint16
}

// PackHeader serializes h into exactly HeaderLen bytes, network byte order.
// It is total: every possible Header value packs without error.
func PackHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(b[0:2], h.FileID)
	binary.BigEndian.PutUint16(b[2:4], h.TotalFrags)
	binary.BigEndian.PutUint16(b[4:6], h.FragIndex)
	b[6] = byte(h.Flags)
	b[7] = byte(h.MsgType)
	binary.BigEndian.PutUint16(b[8:10], h.PayloadLen)
	return b
}

// UnpackHeader parses the first HeaderLen bytes of b into a Header and
// returns the remaining bytes. It fails when b is shorter than HeaderLen.
func UnpackHeader(b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, fmt.Errorf("wire: short header: need %d bytes, got %d", HeaderLen, len(b))
	}
	h := Header{
		FileID:     binary.BigEndian.Uint16(b[0:2]),
		TotalFrags: binary.BigEndian.Uint16(b[2:4]),
		FragIndex:  binary.BigEndian.Uint16(b[4:6]),
		Flags:      Flags(b[6]),
		MsgType:    MsgType(b[7]),
		PayloadLen: binary.BigEndian.Uint16(b[8:10]),
	}
	return h, b[HeaderLen:], nil
}

// AppendCRC returns payload with a trailing 4-byte big-endian CRC-32
// (IEEE 802.3 polynomial) of payload appended. The CRC covers only the
// payload bytes, never the header.
func AppendCRC(payload []byte) []byte {
	sum := crc32.ChecksumIEEE(payload)
	out := make([]byte, len(payload)+CRCLen)
	copy(out, payload)
	binary.BigEndian.PutUint32(out[len(payload):], sum)
	return out
}

// VerifyAndStrip checks the trailing 4-byte CRC of payloadWithCRC against
// the CRC-32 of the preceding bytes. It fails (error) only when the input
// is too short to contain a trailer; a CRC mismatch is reported via the
// returned bool, not an error, since a corrupt-but-well-formed fragment is
// a normal occurrence on the wire, not a programming error.
func VerifyAndStrip(payloadWithCRC []byte) (ok bool, payload []byte, err error) {
	if len(payloadWithCRC) < CRCLen {
		return false, nil, fmt.Errorf("wire: payload shorter than CRC trailer: %d bytes", len(payloadWithCRC))
	}
	split := len(payloadWithCRC) - CRCLen
	payload = payloadWithCRC[:split]
	want := binary.BigEndian.Uint32(payloadWithCRC[split:])
	got := crc32.ChecksumIEEE(payload)
	return want == got, payload, nil
}

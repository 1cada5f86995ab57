package wire

import (
	"encoding/binary"
	"fmt"
)

// l2HeaderLen is dst(6) + src(6) + ethertype(2).
const l2HeaderLen = 2*AddrLen + 2

// BuildFrame concatenates dst, src, ethertype (big-endian) and payload into
// a complete Ethernet II frame. It performs no padding: frames below the
// wire's 60-byte minimum are padded transparently by the link layer, not
// here (see internal/linklayer).
func BuildFrame(dst, src Address, ethertype uint16, payload []byte) []byte {
	b := make([]byte, l2HeaderLen+len(payload))
	copy(b[0:AddrLen], dst[:])
	copy(b[AddrLen:2*AddrLen], src[:])
	binary.BigEndian.PutUint16(b[2*AddrLen:l2HeaderLen], ethertype)
	copy(b[l2HeaderLen:], payload)
	return b
}

// ParseFrame splits a raw Ethernet II frame into its destination address,
// source address, EtherType and payload. It fails when b is shorter than
// the 14-byte L2 header. Trailing padding added by the NIC/driver is left
// in payload; callers bound their own data using payload_len, per spec.
func ParseFrame(b []byte) (dst, src Address, ethertype uint16, payload []byte, err error) {
	if len(b) < l2HeaderLen {
		return dst, src, 0, nil, fmt.Errorf("wire: short frame: need %d bytes, got %d", l2HeaderLen, len(b))
	}
	copy(dst[:], b[0:AddrLen])
	copy(src[:], b[AddrLen:2*AddrLen])
	ethertype = binary.BigEndian.Uint16(b[2*AddrLen : l2HeaderLen])
	payload = b[l2HeaderLen:]
	return dst, src, ethertype, payload, nil
}

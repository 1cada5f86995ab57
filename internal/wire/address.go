// Package wire implements the Link-Chat frame, header and CRC encoding —
// the on-the-wire byte formats shared by every other package in this
// module. Nothing here blocks or allocates goroutines; it is pure byte
// work, mirroring the layering the teacher agent uses to keep protocol
// decoding free of I/O concerns (see internal/core/decoder).
package wire

import (
	"encoding/hex"
	"fmt"
	"net"
)

// AddrLen is the length in bytes of a Link-Chat hardware address.
const AddrLen = 6

// Address is a 6-byte hardware address, the Link-Chat analogue of
// net.HardwareAddr sized for Ethernet.
type Address [AddrLen]byte

// Broadcast is six bytes of 0xFF, the reserved broadcast address.
var Broadcast = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBroadcast reports whether a equals Broadcast.
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

// IsZero reports whether a is the all-zero address (never a valid peer).
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// ParseAddress converts a net.HardwareAddr (as returned by net.Interface
// lookups) into an Address. It fails if hw is not exactly AddrLen bytes —
// Link-Chat has no notion of EUI-64 or other address widths.
func ParseAddress(hw net.HardwareAddr) (Address, error) {
	var a Address
	if len(hw) != AddrLen {
		return a, fmt.Errorf("wire: hardware address must be %d bytes, got %d", AddrLen, len(hw))
	}
	copy(a[:], hw)
	return a, nil
}

// ParseAddressString parses a colon-separated MAC string ("aa:bb:cc:dd:ee:ff").
func ParseAddressString(s string) (Address, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Address{}, fmt.Errorf("wire: invalid address %q: %w", s, err)
	}
	return ParseAddress(hw)
}

// MustParseAddressString is ParseAddressString but panics on error; useful
// for tests and compile-time constants expressed as strings.
func MustParseAddressString(s string) Address {
	a, err := ParseAddressString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// HexString renders the address as 12 lowercase hex digits with no
// separators, handy for log fields and file_id-free diagnostic keys.
func (a Address) HexString() string {
	return hex.EncodeToString(a[:])
}

package afpacket

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// etherTypeOffset is the byte offset of the EtherType field in an
// Ethernet II frame (past the 6-byte destination and 6-byte source MAC).
const etherTypeOffset = 12

// compileEtherTypeFilter builds a classic-BPF program that accepts only
// frames whose EtherType field equals want, dropping everything else at
// the kernel socket filter — so the dispatcher never even sees frames
// from other protocols. Structurally this is the same
// load-absolute/jump-equal/return-or-drop shape as
// otus-packet/internal/utils/bpf.go's compileIPv4Filter, generalized from
// matching an IPv4 EtherType (0x0800) to matching an arbitrary one.
func compileEtherTypeFilter(want uint16) ([]bpf.RawInstruction, error) {
	instructions := []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOffset, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(want), SkipFalse: 1},
		bpf.RetConstant{Val: 65535},
		bpf.RetConstant{Val: 0},
	}

	raw, err := bpf.Assemble(instructions)
	if err != nil {
		return nil, fmt.Errorf("afpacket: failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}

package protocol

import "go.einride.tech/can"

// Priority returns the arbitration key of a frame. The key is laid out like
// the arbitration field on the wire, so a lower key wins arbitration:
//
//	bits 31..21  base identifier (11 bits)
//	bit  20      RTR (standard) / SRR (extended, always recessive)
//	bit  19      IDE
//	bits 18..1   identifier extension (extended only)
//	bit  0       RTR (extended only)
func Priority(f can.Frame) uint32 {
	if !f.IsExtended {
		key := (f.ID & MaxStandardID) << 21
		if f.IsRemote {
			key |= 1 << 20
		}
		return key
	}

	base := (f.ID >> 18) & MaxStandardID
	ext := f.ID & 0x3FFFF
	key := base<<21 | 1<<20 | 1<<19 | ext<<1
	if f.IsRemote {
		key |= 1
	}
	return key
}

// Outranks reports whether a wins arbitration against b
func Outranks(a, b can.Frame) bool {
	return Priority(a) < Priority(b)
}

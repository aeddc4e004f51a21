package tftp

// BlockNumber is the 16-bit unsigned counter carried by DATA and ACK
// packets. It wraps from 0xFFFF back to 0x0000 on Increment, and it is
// compared only via Equals and IsInSeq — ordinary ordering comparisons
// ("<") are wrong in the face of wraparound and must never be used.
type BlockNumber uint16

// Value returns the counter's current 16-bit value.
func (b BlockNumber) Value() uint16 { return uint16(b) }

// Increment returns the next block number, wrapping 0xFFFF to 0x0000.
func (b BlockNumber) Increment() BlockNumber { return b + 1 }

// Equals reports whether b and other carry the same value.
func (b BlockNumber) Equals(other BlockNumber) bool { return b == other }

// IsInSeq reports whether b is the block that immediately follows a, modulo
// 2^16. It is the only ordering predicate defined on BlockNumber.
func IsInSeq(a, b BlockNumber) bool { return a+1 == b }

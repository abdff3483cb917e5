package types

const (
	// UInt64Length is the number of bytes taken by uint64.
	UInt64Length = 8
)

// Address is the byte offset of an allocation relative to the arena base.
// The arena stores offsets, not raw pointers, inside its own contents, so
// links written in one session stay valid after the file is remapped in the
// next one.
type Address uint64

// NullAddress marks an absent link. The index state record occupies offset 0
// and nothing ever points at it, so 0 is free to mean null.
const NullAddress Address = 0

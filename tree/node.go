package tree

import (
	"unsafe"

	"github.com/angelalalacheng/scmindex/types"
)

// State is the arena's root allocation. It anchors the tree across sessions:
// a fresh arena gets a zeroed record at address 0, a reopened arena adopts
// the record found there.
type State struct {
	// Items is the total number of inserted words including duplicates.
	Items uint64

	// Unique is the number of distinct words currently present.
	Unique uint64

	// Root is the address of the tree root, or NullAddress.
	Root types.Address
}

// Node is a single tree node. Every field is 8 bytes wide so the record
// layout is identical in every session of the same build.
type Node struct {
	// Depth is the height of the subtree rooted at this node. Leaves have
	// depth 0, an absent child counts as -1.
	Depth int64

	// Count is the number of times Item has been inserted.
	Count uint64

	// Item is the address of the zero-terminated word owned by this node.
	Item types.Address

	// Left and Right are child addresses, or NullAddress.
	Left  types.Address
	Right types.Address
}

const (
	// StateLength is the allocation size of the state record.
	StateLength = uint64(unsafe.Sizeof(State{}))

	// NodeLength is the allocation size of a node.
	NodeLength = uint64(unsafe.Sizeof(Node{}))

	// RecordAlignment is the alignment of state and node allocations.
	RecordAlignment = uint64(unsafe.Alignof(Node{}))
)

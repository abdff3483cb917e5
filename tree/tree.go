package tree

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/outofforest/photon"

	"github.com/angelalalacheng/scmindex/scm"
	"github.com/angelalalacheng/scmindex/types"
)

// Errors returned by the tree.
var (
	// ErrNotFound is returned when the deleted word is absent.
	ErrNotFound = errors.New("item not found")
)

// New adopts the state record of an already utilized arena, or allocates a
// zeroed one at the arena base.
func New(s *scm.SCM) (*Tree, error) {
	if s.Utilized() > 0 {
		return &Tree{
			scm:   s,
			state: photon.FromPointer[State](s.Node(0)),
		}, nil
	}

	addr, err := s.Alloc(StateLength, RecordAlignment)
	if err != nil {
		return nil, err
	}
	if addr != types.NullAddress {
		return nil, errors.Errorf("state record allocated at %d, not at the arena base", addr)
	}
	state := photon.FromPointer[State](s.Node(addr))
	*state = State{}

	return &Tree{
		scm:   s,
		state: state,
	}, nil
}

// Tree is a height-balanced search tree of counted words. Nodes and words
// live entirely inside the arena and link to each other by arena address, so
// the whole structure survives close and reopen.
type Tree struct {
	scm   *scm.SCM
	state *State
}

// Insert records one occurrence of word. An unseen word gets a new node and
// a private copy of its bytes; a repeated word only bumps its count. The
// insertion path is rebalanced on unwind. If any allocation fails the tree
// and its counters are left untouched.
func (t *Tree) Insert(word []byte) error {
	if len(word) == 0 {
		return errors.WithStack(scm.ErrInvalidArgument)
	}
	root, err := t.insert(t.state.Root, word)
	if err != nil {
		return err
	}
	t.state.Root = root
	return nil
}

// Exists returns the number of times word was inserted, or 0 if absent.
func (t *Tree) Exists(word []byte) uint64 {
	addr := t.state.Root
	for addr != types.NullAddress {
		n := t.node(addr)
		switch d := bytes.Compare(word, t.scm.CString(n.Item)); {
		case d == 0:
			return n.Count
		case d < 0:
			addr = n.Left
		default:
			addr = n.Right
		}
	}
	return 0
}

// Delete removes all occurrences of word. Returns ErrNotFound if the word is
// absent, leaving the tree untouched. Node and word storage is not
// reclaimed; the arena is append-only.
func (t *Tree) Delete(word []byte) error {
	if len(word) == 0 {
		return errors.WithStack(scm.ErrInvalidArgument)
	}
	count := t.Exists(word)
	if count == 0 {
		return errors.WithStack(ErrNotFound)
	}

	t.state.Root = t.delete(t.state.Root, word)
	t.state.Items -= count
	t.state.Unique--
	return nil
}

// Traverse visits every node in ascending lexicographic order of words. The
// callback must not mutate the tree.
func (t *Tree) Traverse(fn func(item []byte, count uint64)) {
	t.traverse(t.state.Root, fn)
}

// Items returns the total number of inserted words including duplicates.
func (t *Tree) Items() uint64 {
	return t.state.Items
}

// Unique returns the number of distinct words currently present.
func (t *Tree) Unique() uint64 {
	return t.state.Unique
}

func (t *Tree) node(addr types.Address) *Node {
	return photon.FromPointer[Node](t.scm.Node(addr))
}

func (t *Tree) item(n *Node) []byte {
	return t.scm.CString(n.Item)
}

func (t *Tree) depthOf(addr types.Address) int64 {
	if addr == types.NullAddress {
		return -1
	}
	return t.node(addr).Depth
}

func (t *Tree) balance(n *Node) int64 {
	return t.depthOf(n.Left) - t.depthOf(n.Right)
}

func depth(a, b int64) int64 {
	if a > b {
		return a + 1
	}
	return b + 1
}

// insert returns the address of the possibly rotated subtree root; the
// caller re-links its child pointer from the return value. Child links are
// assigned only after the recursion succeeds, so an allocation failure
// propagates without structural change.
func (t *Tree) insert(rootAddr types.Address, word []byte) (types.Address, error) {
	if rootAddr == types.NullAddress {
		nodeAddr, err := t.scm.Alloc(NodeLength, RecordAlignment)
		if err != nil {
			return 0, err
		}
		itemAddr, err := t.scm.StrDup(word)
		if err != nil {
			return 0, err
		}
		*t.node(nodeAddr) = Node{
			Count: 1,
			Item:  itemAddr,
		}
		t.state.Items++
		t.state.Unique++
		return nodeAddr, nil
	}

	n := t.node(rootAddr)
	switch d := bytes.Compare(word, t.item(n)); {
	case d == 0:
		n.Count++
		t.state.Items++
		return rootAddr, nil
	case d < 0:
		left, err := t.insert(n.Left, word)
		if err != nil {
			return 0, err
		}
		n.Left = left
	default:
		right, err := t.insert(n.Right, word)
		if err != nil {
			return 0, err
		}
		n.Right = right
	}

	n.Depth = depth(t.depthOf(n.Left), t.depthOf(n.Right))
	return t.rebalanceInsert(rootAddr, word), nil
}

// rebalanceInsert applies at most one rotation, selecting the case by
// comparing the inserted word against the heavy child's item.
func (t *Tree) rebalanceInsert(rootAddr types.Address, word []byte) types.Address {
	n := t.node(rootAddr)
	switch b := t.balance(n); {
	case b > 1:
		if bytes.Compare(word, t.item(t.node(n.Left))) < 0 {
			return t.rotateRight(rootAddr)
		}
		return t.rotateLeftRight(rootAddr)
	case b < -1:
		if bytes.Compare(word, t.item(t.node(n.Right))) > 0 {
			return t.rotateLeft(rootAddr)
		}
		return t.rotateRightLeft(rootAddr)
	default:
		return rootAddr
	}
}

// delete returns the address of the possibly rotated subtree root after
// removing word. The word is known to be present.
func (t *Tree) delete(rootAddr types.Address, word []byte) types.Address {
	n := t.node(rootAddr)
	switch d := bytes.Compare(word, t.item(n)); {
	case d < 0:
		n.Left = t.delete(n.Left, word)
	case d > 0:
		n.Right = t.delete(n.Right, word)
	default:
		if n.Left == types.NullAddress || n.Right == types.NullAddress {
			child := n.Left
			if child == types.NullAddress {
				child = n.Right
			}
			t.scm.Free(n.Item)
			t.scm.Free(rootAddr)
			return child
		}

		succAddr := n.Right
		for t.node(succAddr).Left != types.NullAddress {
			succAddr = t.node(succAddr).Left
		}
		succ := t.node(succAddr)
		n.Item = succ.Item
		n.Count = succ.Count
		n.Right = t.delete(n.Right, t.item(succ))
	}

	n.Depth = depth(t.depthOf(n.Left), t.depthOf(n.Right))
	return t.rebalanceDelete(rootAddr)
}

// rebalanceDelete applies at most one rotation, selecting the case by the
// balance of the heavy child. The deleted word cannot serve as a tiebreaker
// here, it may already be gone from the subtree.
func (t *Tree) rebalanceDelete(rootAddr types.Address) types.Address {
	n := t.node(rootAddr)
	switch b := t.balance(n); {
	case b > 1:
		if t.balance(t.node(n.Left)) >= 0 {
			return t.rotateRight(rootAddr)
		}
		return t.rotateLeftRight(rootAddr)
	case b < -1:
		if t.balance(t.node(n.Right)) <= 0 {
			return t.rotateLeft(rootAddr)
		}
		return t.rotateRightLeft(rootAddr)
	default:
		return rootAddr
	}
}

func (t *Tree) rotateRight(nodeAddr types.Address) types.Address {
	n := t.node(nodeAddr)
	rootAddr := n.Left
	root := t.node(rootAddr)

	n.Left = root.Right
	root.Right = nodeAddr
	n.Depth = depth(t.depthOf(n.Left), t.depthOf(n.Right))
	root.Depth = depth(t.depthOf(root.Left), n.Depth)
	return rootAddr
}

func (t *Tree) rotateLeft(nodeAddr types.Address) types.Address {
	n := t.node(nodeAddr)
	rootAddr := n.Right
	root := t.node(rootAddr)

	n.Right = root.Left
	root.Left = nodeAddr
	n.Depth = depth(t.depthOf(n.Left), t.depthOf(n.Right))
	root.Depth = depth(t.depthOf(root.Right), n.Depth)
	return rootAddr
}

func (t *Tree) rotateLeftRight(nodeAddr types.Address) types.Address {
	n := t.node(nodeAddr)
	n.Left = t.rotateLeft(n.Left)
	return t.rotateRight(nodeAddr)
}

func (t *Tree) rotateRightLeft(nodeAddr types.Address) types.Address {
	n := t.node(nodeAddr)
	n.Right = t.rotateRight(n.Right)
	return t.rotateLeft(nodeAddr)
}

func (t *Tree) traverse(addr types.Address, fn func(item []byte, count uint64)) {
	if addr == types.NullAddress {
		return
	}
	n := t.node(addr)
	t.traverse(n.Left, fn)
	fn(t.item(n), n.Count)
	t.traverse(n.Right, fn)
}

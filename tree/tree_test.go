package tree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelalalacheng/scmindex/scm"
	"github.com/angelalalacheng/scmindex/types"
)

const arenaSize = 64 * 1024

func newTree(t *testing.T, size uint64) *Tree {
	tr, err := New(scm.OpenForTest(t, size))
	require.NoError(t, err)
	return tr
}

type entry struct {
	Word  string
	Count uint64
}

func collect(tr *Tree) []entry {
	var entries []entry
	tr.Traverse(func(item []byte, count uint64) {
		entries = append(entries, entry{Word: string(item), Count: count})
	})
	return entries
}

// verify checks the shape invariants: items ascending in order, every depth
// derived from the children, no balance outside [-1, 1], and the counters
// matching the reachable nodes.
func verify(requireT *require.Assertions, tr *Tree) {
	var nodes, items uint64
	var prev []byte
	tr.Traverse(func(item []byte, count uint64) {
		if nodes > 0 {
			requireT.Less(string(prev), string(item))
		}
		prev = append(prev[:0], item...)
		requireT.NotZero(count)
		nodes++
		items += count
	})
	requireT.Equal(tr.state.Unique, nodes)
	requireT.Equal(tr.state.Items, items)

	verifyDepths(requireT, tr, tr.state.Root)
}

func verifyDepths(requireT *require.Assertions, tr *Tree, addr types.Address) int64 {
	if addr == types.NullAddress {
		return -1
	}
	n := tr.node(addr)
	left := verifyDepths(requireT, tr, n.Left)
	right := verifyDepths(requireT, tr, n.Right)
	requireT.Equal(depth(left, right), n.Depth)
	balance := left - right
	requireT.LessOrEqual(balance, int64(1))
	requireT.GreaterOrEqual(balance, int64(-1))
	return n.Depth
}

func TestInsert(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("foo")))
	requireT.NoError(tr.Insert([]byte("foo")))
	requireT.NoError(tr.Insert([]byte("bar")))

	requireT.EqualValues(3, tr.Items())
	requireT.EqualValues(2, tr.Unique())
	requireT.EqualValues(2, tr.Exists([]byte("foo")))
	requireT.EqualValues(1, tr.Exists([]byte("bar")))
	requireT.EqualValues(0, tr.Exists([]byte("baz")))
	requireT.Equal([]entry{{Word: "bar", Count: 1}, {Word: "foo", Count: 2}}, collect(tr))
	verify(requireT, tr)
}

func TestInsertEmptyWord(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.ErrorIs(tr.Insert(nil), scm.ErrInvalidArgument)
	requireT.ErrorIs(tr.Insert([]byte{}), scm.ErrInvalidArgument)
	requireT.EqualValues(0, tr.Items())
}

func TestInsertAscendingStaysBalanced(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	for _, word := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		requireT.NoError(tr.Insert([]byte(word)))
		verify(requireT, tr)
	}

	requireT.EqualValues(7, tr.Items())
	requireT.EqualValues(7, tr.Unique())
	requireT.Equal([]entry{
		{Word: "a", Count: 1}, {Word: "b", Count: 1}, {Word: "c", Count: 1},
		{Word: "d", Count: 1}, {Word: "e", Count: 1}, {Word: "f", Count: 1},
		{Word: "g", Count: 1},
	}, collect(tr))

	// Seven sequential inserts settle into the perfectly balanced shape.
	requireT.Equal(int64(2), tr.node(tr.state.Root).Depth)
}

func TestInsertDescendingStaysBalanced(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	for _, word := range []string{"g", "f", "e", "d", "c", "b", "a"} {
		requireT.NoError(tr.Insert([]byte(word)))
		verify(requireT, tr)
	}
	requireT.Equal(int64(2), tr.node(tr.state.Root).Depth)
}

func TestInsertZigZag(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	// Double rotations: left-right and right-left.
	for _, word := range []string{"m", "c", "f", "t", "p"} {
		requireT.NoError(tr.Insert([]byte(word)))
		verify(requireT, tr)
	}
	requireT.Equal([]entry{
		{Word: "c", Count: 1}, {Word: "f", Count: 1}, {Word: "m", Count: 1},
		{Word: "p", Count: 1}, {Word: "t", Count: 1},
	}, collect(tr))
}

func TestCaseDiscrimination(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("a")))
	requireT.NoError(tr.Insert([]byte("A")))

	requireT.EqualValues(2, tr.Unique())
	requireT.EqualValues(1, tr.Exists([]byte("a")))
	requireT.EqualValues(1, tr.Exists([]byte("A")))
	requireT.Equal([]entry{{Word: "A", Count: 1}, {Word: "a", Count: 1}}, collect(tr))
}

func TestExistsDoesNotMutate(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("foo")))
	for range 3 {
		requireT.EqualValues(1, tr.Exists([]byte("foo")))
		requireT.EqualValues(0, tr.Exists([]byte("bar")))
	}
	requireT.EqualValues(1, tr.Items())
	requireT.EqualValues(1, tr.Unique())
}

func TestDeleteLeaf(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	for _, word := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		requireT.NoError(tr.Insert([]byte(word)))
	}
	requireT.NoError(tr.Delete([]byte("a")))

	requireT.EqualValues(6, tr.Items())
	requireT.EqualValues(6, tr.Unique())
	requireT.EqualValues(0, tr.Exists([]byte("a")))
	verify(requireT, tr)
}

func TestDeleteNodeWithTwoChildren(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	for _, word := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		requireT.NoError(tr.Insert([]byte(word)))
	}
	requireT.NoError(tr.Insert([]byte("f")))
	requireT.NoError(tr.Delete([]byte("d")))

	requireT.EqualValues(7, tr.Items())
	requireT.EqualValues(6, tr.Unique())
	requireT.EqualValues(0, tr.Exists([]byte("d")))
	requireT.Equal([]entry{
		{Word: "a", Count: 1}, {Word: "b", Count: 1}, {Word: "c", Count: 1},
		{Word: "e", Count: 1}, {Word: "f", Count: 2}, {Word: "g", Count: 1},
	}, collect(tr))
	verify(requireT, tr)
}

func TestDeleteRoot(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("b")))
	requireT.NoError(tr.Insert([]byte("a")))
	requireT.NoError(tr.Insert([]byte("c")))
	requireT.NoError(tr.Delete([]byte("b")))

	requireT.Equal([]entry{{Word: "a", Count: 1}, {Word: "c", Count: 1}}, collect(tr))
	verify(requireT, tr)
}

func TestDeleteLastNode(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("solo")))
	requireT.NoError(tr.Delete([]byte("solo")))

	requireT.EqualValues(0, tr.Items())
	requireT.EqualValues(0, tr.Unique())
	requireT.Equal(types.NullAddress, tr.state.Root)
	requireT.Empty(collect(tr))
}

func TestDeleteAllOccurrences(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("foo")))
	requireT.NoError(tr.Insert([]byte("foo")))
	requireT.NoError(tr.Insert([]byte("bar")))
	requireT.NoError(tr.Delete([]byte("foo")))

	requireT.EqualValues(1, tr.Items())
	requireT.EqualValues(1, tr.Unique())
	requireT.EqualValues(0, tr.Exists([]byte("foo")))
	verify(requireT, tr)
}

func TestDeleteMissingWord(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	requireT.NoError(tr.Insert([]byte("foo")))

	requireT.ErrorIs(tr.Delete([]byte("zzz")), ErrNotFound)
	requireT.EqualValues(1, tr.Items())
	requireT.EqualValues(1, tr.Unique())
	verify(requireT, tr)
}

func TestDeleteRebalances(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	words := make([]string, 0, 32)
	for i := range 32 {
		words = append(words, fmt.Sprintf("w%02d", i))
	}
	for _, word := range words {
		requireT.NoError(tr.Insert([]byte(word)))
	}

	// Carving out one side forces rotations on the unwind path.
	for _, word := range words[:24] {
		requireT.NoError(tr.Delete([]byte(word)))
		verify(requireT, tr)
	}
	requireT.EqualValues(8, tr.Unique())
}

func TestInsertDeleteMix(t *testing.T) {
	requireT := require.New(t)

	tr := newTree(t, arenaSize)

	for i := range 100 {
		requireT.NoError(tr.Insert([]byte(fmt.Sprintf("word-%03d", i*37%100))))
		requireT.NoError(tr.Insert([]byte(fmt.Sprintf("word-%03d", i))))
	}
	verify(requireT, tr)
	requireT.EqualValues(200, tr.Items())
	requireT.EqualValues(100, tr.Unique())

	for i := 0; i < 100; i += 3 {
		requireT.NoError(tr.Delete([]byte(fmt.Sprintf("word-%03d", i))))
		verify(requireT, tr)
	}
	requireT.EqualValues(66, tr.Unique())
}

func TestStateAdoptedAfterReopen(t *testing.T) {
	requireT := require.New(t)

	path := scm.NewFileForTest(t, arenaSize)

	s, err := scm.Open(path, true)
	requireT.NoError(err)
	tr, err := New(s)
	requireT.NoError(err)
	requireT.NoError(tr.Insert([]byte("keep")))
	requireT.NoError(tr.Insert([]byte("keep")))
	requireT.NoError(s.Close())

	s, err = scm.Open(path, false)
	requireT.NoError(err)
	tr, err = New(s)
	requireT.NoError(err)
	requireT.EqualValues(2, tr.Exists([]byte("keep")))
	requireT.EqualValues(2, tr.Items())
	requireT.EqualValues(1, tr.Unique())
	verify(requireT, tr)
	requireT.NoError(s.Close())
}

func TestInsertFailsAtomically(t *testing.T) {
	requireT := require.New(t)

	// Room for the state record and very little else.
	tr := newTree(t, 128)

	requireT.NoError(tr.Insert([]byte("ok")))

	before := collect(tr)
	err := tr.Insert([]byte("a-word-too-long-to-fit-in-the-remaining-arena-space"))
	requireT.ErrorIs(err, scm.ErrOutOfArena)
	requireT.EqualValues(1, tr.Items())
	requireT.EqualValues(1, tr.Unique())
	requireT.Equal(before, collect(tr))
	verify(requireT, tr)
}

// Package scmindex implements a persistent word index: occurrence counts of
// byte strings stored in a height-balanced search tree whose nodes and
// payloads live inside a memory-mapped, bump-allocated arena file. Reopening
// the index over the same file restores the previous state without replay.
package scmindex

import (
	"github.com/angelalalacheng/scmindex/scm"
	"github.com/angelalalacheng/scmindex/tree"
)

// Open maps the backing file and adopts the index state stored there. With
// truncate set, any previous state is discarded and a fresh state record is
// allocated at the arena base. The arena is released if index setup fails.
func Open(path string, truncate bool) (*Index, error) {
	s, err := scm.Open(path, truncate)
	if err != nil {
		return nil, err
	}

	t, err := tree.New(s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &Index{
		scm:  s,
		tree: t,
	}, nil
}

// Index counts occurrences of words across process invocations.
type Index struct {
	scm  *scm.SCM
	tree *tree.Tree
}

// Close flushes the arena to the backing file and releases it. The file then
// reflects every successful mutation made through this handle.
func (ix *Index) Close() error {
	return ix.scm.Close()
}

// Insert records one occurrence of word.
func (ix *Index) Insert(word string) error {
	return ix.tree.Insert([]byte(word))
}

// Delete removes all occurrences of word.
func (ix *Index) Delete(word string) error {
	return ix.tree.Delete([]byte(word))
}

// Exists returns the number of times word was inserted, or 0 if absent.
func (ix *Index) Exists(word string) uint64 {
	return ix.tree.Exists([]byte(word))
}

// Traverse visits every word in ascending lexicographic order.
func (ix *Index) Traverse(fn func(word string, count uint64)) {
	ix.tree.Traverse(func(item []byte, count uint64) {
		fn(string(item), count)
	})
}

// Items returns the total number of inserted words including duplicates.
func (ix *Index) Items() uint64 {
	return ix.tree.Items()
}

// Unique returns the number of distinct words currently present.
func (ix *Index) Unique() uint64 {
	return ix.tree.Unique()
}

// Utilized returns the number of arena bytes allocated so far.
func (ix *Index) Utilized() uint64 {
	return ix.scm.Utilized()
}

// Capacity returns the number of arena bytes still available.
func (ix *Index) Capacity() uint64 {
	return ix.scm.Capacity()
}

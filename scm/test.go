package scm

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewFileForTest creates a backing file of the given size for unit tests.
func NewFileForTest(t *testing.T, size uint64) string {
	path := filepath.Join(t.TempDir(), "scm.db")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(int64(size)-1, io.SeekStart)
	require.NoError(t, err)

	_, err = f.Write([]byte{0x00})
	require.NoError(t, err)

	return path
}

// OpenForTest opens an arena over a fresh backing file of the given size and
// closes it when the test finishes.
func OpenForTest(t *testing.T, size uint64) *SCM {
	s, err := Open(NewFileForTest(t, size), true)
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.data != nil {
			require.NoError(t, s.Close())
		}
	})
	return s
}

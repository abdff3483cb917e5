package scm

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/outofforest/photon"

	"github.com/angelalalacheng/scmindex/types"
)

// FooterLength is the number of trailing bytes of the backing file storing
// the utilization water mark.
const FooterLength = types.UInt64Length

// Errors returned by the arena.
var (
	// ErrOutOfArena is returned when an allocation does not fit in the
	// remaining arena space.
	ErrOutOfArena = errors.New("out of arena space")

	// ErrInvalidArgument is returned on zero-length allocations and other
	// caller mistakes.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Open maps the backing file into memory and restores the utilization water
// mark recorded by the previous session, unless truncate is set, in which
// case the arena starts empty. The file must be a regular file created
// beforehand; the arena never grows it. The file is locked exclusively for
// the lifetime of the handle.
func Open(path string, truncate bool) (*SCM, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening backing file failed")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, errors.Errorf("%s is not a regular file", path)
	}
	size := uint64(info.Size())
	if size <= FooterLength {
		_ = f.Close()
		return nil, errors.Errorf("backing file is too small: %d bytes", size)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "locking backing file failed")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "mapping backing file failed")
	}

	s := &SCM{
		file:   f,
		data:   data,
		origin: unsafe.Pointer(&data[0]),
		size:   size - FooterLength,
	}
	if !truncate {
		s.utilized = *photon.FromBytes[uint64](data[s.size:])
		if s.utilized > s.size {
			_ = unix.Munmap(data)
			_ = f.Close()
			return nil, errors.Errorf("corrupted water mark: %d exceeds arena size %d",
				s.utilized, s.size)
		}
	}

	return s, nil
}

// SCM is a bump-allocated persistent heap backed by a memory-mapped file.
// Bytes [0, utilized) are live, bytes [utilized, size) are free, and the
// trailing footer holds the water mark between sessions.
type SCM struct {
	file     *os.File
	data     []byte
	origin   unsafe.Pointer
	size     uint64
	utilized uint64
}

// Alloc reserves n bytes and returns the address of the reservation. The
// address is rounded up to alignment, which must be a power of two. Records
// and byte strings interleave in the arena, so alignment is the caller's
// concern. A failed allocation leaves the water mark unchanged.
func (s *SCM) Alloc(n, alignment uint64) (types.Address, error) {
	if n == 0 || alignment == 0 || alignment&(alignment-1) != 0 {
		return 0, errors.WithStack(ErrInvalidArgument)
	}
	offset := (s.utilized + alignment - 1) &^ (alignment - 1)
	if offset > s.size || n > s.size-offset {
		return 0, errors.WithStack(ErrOutOfArena)
	}
	s.utilized = offset + n
	return types.Address(offset), nil
}

// StrDup copies word into the arena together with the terminating zero byte
// and returns the address of the copy.
func (s *SCM) StrDup(word []byte) (types.Address, error) {
	addr, err := s.Alloc(uint64(len(word))+1, 1)
	if err != nil {
		return 0, err
	}
	b := s.Bytes(addr, uint64(len(word))+1)
	copy(b, word)
	b[len(word)] = 0
	return addr, nil
}

// Free releases nothing. The arena is append-only; the method exists for
// symmetry with Alloc.
func (s *SCM) Free(types.Address) {}

// Base returns the pointer to the start of the mapping, where the first
// allocation of a fresh arena lands.
func (s *SCM) Base() unsafe.Pointer {
	return s.origin
}

// Node returns the pointer to the allocation at the given address.
func (s *SCM) Node(addr types.Address) unsafe.Pointer {
	return unsafe.Add(s.origin, addr)
}

// Bytes returns n bytes of the allocation at the given address.
func (s *SCM) Bytes(addr types.Address, n uint64) []byte {
	return photon.SliceFromPointer[byte](s.Node(addr), int(n))
}

// CString returns the zero-terminated byte string stored at the given
// address, without the terminator.
func (s *SCM) CString(addr types.Address) []byte {
	b := s.data[addr:s.utilized]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return b
}

// Utilized returns the number of arena bytes allocated so far.
func (s *SCM) Utilized() uint64 {
	return s.utilized
}

// Capacity returns the number of arena bytes still available.
func (s *SCM) Capacity() uint64 {
	return s.size - s.utilized
}

// Close records the water mark in the footer, flushes the mapping to the
// backing file, unmaps it and releases the file. All release steps run even
// when an earlier one fails; the first error is reported.
func (s *SCM) Close() error {
	*photon.FromBytes[uint64](s.data[s.size:]) = s.utilized

	err := unix.Msync(s.data, unix.MS_SYNC)
	if err2 := unix.Munmap(s.data); err == nil {
		err = err2
	}
	if err2 := s.file.Close(); err == nil {
		err = err2
	}
	s.data = nil
	s.origin = nil
	return errors.WithStack(err)
}

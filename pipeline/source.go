package pipeline

import (
	"fmt"

	"github.com/arloliu/dictstream/errs"
)

// Source is an immutable view over the full input of a run.
//
// Both coordinators read it concurrently without locking; nothing writes to
// it after construction.
type Source struct {
	data []byte
}

// NewSource wraps data. The caller must not modify data while a run is in progress.
func NewSource(data []byte) *Source {
	return &Source{data: data}
}

// Size returns the source length in bytes.
func (s *Source) Size() int {
	return len(s.data)
}

// Window returns a read-only view of n bytes starting at off.
//
// The view is capacity-limited so appends cannot spill into the rest of the source.
func (s *Source) Window(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(s.data) || n > len(s.data)-off {
		return nil, fmt.Errorf("%w: window [%d, %d+%d) outside %d byte source",
			errs.ErrBoundsViolation, off, off, n, len(s.data))
	}

	return s.data[off : off+n : off+n], nil
}

// CopyWindow copies len(dst) bytes starting at off into dst.
func (s *Source) CopyWindow(dst []byte, off int) error {
	w, err := s.Window(off, len(dst))
	if err != nil {
		return err
	}

	return copyExact(dst, w)
}

// copyExact copies src into dst and fails unless every byte was copied.
func copyExact(dst, src []byte) error {
	if n := copy(dst, src); n != len(src) {
		return fmt.Errorf("%w: copied %d of %d bytes", errs.ErrCopyFailure, n, len(src))
	}

	return nil
}

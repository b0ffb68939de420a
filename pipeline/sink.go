package pipeline

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/errs"
)

// WindowOutput is the compressed form of one window.
type WindowOutput struct {
	Window     int
	Offset     int
	Generation Generation // read-only; shared with the slot
	Blocks     [][]byte   // compressed blocks, in source order
	BlockSizes []int      // uncompressed size of each block
}

// CompressedSize returns the total size of the compressed blocks.
func (w WindowOutput) CompressedSize() int {
	n := 0
	for _, b := range w.Blocks {
		n += len(b)
	}

	return n
}

// Sink receives every compressed window in source order.
//
// WriteWindow is called from the compression goroutine after the window has
// been consumed. A sink error aborts the run.
type Sink interface {
	WriteWindow(w WindowOutput) error
}

// MemorySink retains every compressed window in memory.
type MemorySink struct {
	mu      sync.Mutex
	windows []WindowOutput
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// WriteWindow implements Sink.
func (s *MemorySink) WriteWindow(w WindowOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows = append(s.windows, w)

	return nil
}

// Windows returns the retained windows.
func (s *MemorySink) Windows() []WindowOutput {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]WindowOutput(nil), s.windows...)
}

// Decompress restores the concatenated source from the retained windows.
func (s *MemorySink) Decompress(d compress.Decompressor) ([]byte, error) {
	var out bytes.Buffer
	for _, w := range s.Windows() {
		for i, block := range w.Blocks {
			raw, err := d.Decompress(w.Generation.Dict, block)
			if err != nil {
				return nil, fmt.Errorf("window %d block %d (generation %d): %w", w.Window, i, w.Generation.Seq, err)
			}
			if len(raw) != w.BlockSizes[i] {
				return nil, fmt.Errorf("%w: window %d block %d restored %d bytes, want %d",
					errs.ErrBoundsViolation, w.Window, i, len(raw), w.BlockSizes[i])
			}
			out.Write(raw)
		}
	}

	return out.Bytes(), nil
}

// Verify decompresses every retained window and compares it with source.
func (s *MemorySink) Verify(d compress.Decompressor, source []byte) error {
	restored, err := s.Decompress(d)
	if err != nil {
		return err
	}
	if !bytes.Equal(restored, source) {
		return fmt.Errorf("restored %d bytes do not match %d byte source", len(restored), len(source))
	}

	return nil
}

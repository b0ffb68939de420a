package compress

import (
	"errors"
	"sync"

	"github.com/arloliu/dictstream/format"
	"github.com/pierrec/lz4/v4"
)

// lz4CompressorPool pools lz4.Compressor instances for reuse.
// The lz4.Compressor maintains a hash table that benefits from reuse.
var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Codec provides LZ4 block compression.
//
// LZ4 block compression has no dictionary support here; it ignores the
// dictionary and serves as a fast no-dictionary baseline.
type LZ4Codec struct{}

var _ Codec = (*LZ4Codec)(nil)

// NewLZ4Codec creates a new LZ4 codec.
func NewLZ4Codec() *LZ4Codec {
	return &LZ4Codec{}
}

// Type returns format.CompressionLZ4.
func (c *LZ4Codec) Type() format.CompressionType {
	return format.CompressionLZ4
}

// NewSession opens a session holding one pooled lz4.Compressor for the whole window.
func (c *LZ4Codec) NewSession(_ []byte) (Session, error) {
	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	return &lz4Session{lc: lc}, nil
}

// Decompress decompresses the input data using LZ4 decompression.
//
// The decompressed size is not stored in LZ4 blocks, so the buffer starts at
// 4x the compressed size and doubles on ErrInvalidSourceShortBuffer, up to a
// 128MB safety limit.
func (c *LZ4Codec) Decompress(_, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	bufSize := len(data) * 4
	const maxSize = 128 * 1024 * 1024

	for bufSize <= maxSize {
		buf := make([]byte, bufSize)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) && bufSize < maxSize {
				bufSize *= 2
				continue
			}

			return nil, err
		}

		return buf[:n], nil
	}

	return nil, lz4.ErrInvalidSourceShortBuffer
}

type lz4Session struct {
	lc *lz4.Compressor
}

// Compress compresses one block. Incompressible blocks are stored as literal-only LZ4
// sequences so that Decompress can always restore them.
func (s *lz4Session) Compress(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(block)))
	n, err := s.lc.CompressBlock(block, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return literalLZ4Block(block), nil
	}

	return dst[:n], nil
}

func (s *lz4Session) Close() error {
	if s.lc != nil {
		lz4CompressorPool.Put(s.lc)
		s.lc = nil
	}

	return nil
}

// literalLZ4Block encodes src as a single LZ4 sequence consisting only of literals.
func literalLZ4Block(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n+n/255+2)

	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}

	return append(out, src...)
}

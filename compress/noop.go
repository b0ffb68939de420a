package compress

import (
	"bytes"

	"github.com/arloliu/dictstream/format"
)

// NoOpCodec stores blocks without compression.
//
// It is useful as a baseline and for measuring pipeline overhead without any
// compression cost. Unlike a zero-copy pass-through it copies each block, because
// the pipeline compresses views of reusable scratch buffers.
type NoOpCodec struct{}

var _ Codec = (*NoOpCodec)(nil)

// NewNoOpCodec creates a new no-operation codec.
func NewNoOpCodec() *NoOpCodec {
	return &NoOpCodec{}
}

// Type returns format.CompressionNone.
func (c *NoOpCodec) Type() format.CompressionType {
	return format.CompressionNone
}

// NewSession returns a session that copies blocks verbatim.
func (c *NoOpCodec) NewSession(_ []byte) (Session, error) {
	return noopSession{}, nil
}

// Decompress returns a copy of data.
func (c *NoOpCodec) Decompress(_, data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

type noopSession struct{}

func (noopSession) Compress(block []byte) ([]byte, error) {
	return bytes.Clone(block), nil
}

func (noopSession) Close() error {
	return nil
}

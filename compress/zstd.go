package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/hash"
)

// zstdFrameMagic is the little-endian magic number that starts a zstd frame.
const zstdFrameMagic = 0xFD2FB528

// zstdDictMagic is the little-endian magic number that starts a trained zstd dictionary.
// Dictionaries without it are treated as raw content.
const zstdDictMagic = 0xEC30A437

// ZstdCodec provides Zstandard compression with trained or raw-content dictionaries.
//
// With cgo enabled the codec uses libzstd through gozstd (CDict/DDict); otherwise
// it uses the pure-Go klauspost/compress implementation. Both accept dictionaries
// produced by the zstd trainers in the train package as well as arbitrary
// raw-content dictionaries.
//
// Performance characteristics:
//   - Prepared dictionaries are digested once per window and shared by all blocks
//   - Dictionary-less sessions reuse pooled encoders
//   - Decompression creates a decoder per call when a dictionary is involved
type ZstdCodec struct {
	level int
	api   DictAPI
}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a new Zstd codec.
//
// Example:
//
//	codec, err := compress.NewZstdCodec(compress.WithLevel(3))
//	if err != nil {
//		return err
//	}
//	compressed, err := compress.Compress(codec, dict, data)
func NewZstdCodec(opts ...CodecOption) (*ZstdCodec, error) {
	cfg, err := newCodecConfig(opts)
	if err != nil {
		return nil, err
	}

	return &ZstdCodec{level: cfg.level, api: cfg.api}, nil
}

// Type returns format.CompressionZstd.
func (c *ZstdCodec) Type() format.CompressionType {
	return format.CompressionZstd
}

// Level returns the configured compression level.
func (c *ZstdCodec) Level() int {
	return c.level
}

// IsZstdDict reports whether dict is a trained zstd dictionary (as opposed to raw content).
func IsZstdDict(dict []byte) bool {
	return len(dict) >= 8 && binary.LittleEndian.Uint32(dict) == zstdDictMagic
}

// DictID returns the dictionary ID that frames compressed with dict carry.
//
// Trained dictionaries carry their own ID in the header. Raw-content
// dictionaries are identified by a hash of their content.
func DictID(dict []byte) uint32 {
	if len(dict) == 0 {
		return 0
	}
	if IsZstdDict(dict) {
		return binary.LittleEndian.Uint32(dict[4:])
	}

	return hash.DictID(dict)
}

// rawDictID returns the ID to stamp on frames compressed with a raw-content
// dictionary, or 0 when the encoder writes the ID itself.
func rawDictID(dict []byte) uint32 {
	if len(dict) == 0 || IsZstdDict(dict) {
		return 0
	}

	return hash.DictID(dict)
}

// frameDictIDField locates the Dictionary_ID field of a zstd frame header.
// size is 0 when the frame carries no dictionary ID.
func frameDictIDField(frame []byte) (pos, size int, ok bool) {
	if len(frame) < 5 || binary.LittleEndian.Uint32(frame) != zstdFrameMagic {
		return 0, 0, false
	}

	fhd := frame[4]
	pos = 5
	if fhd&0x20 == 0 { // window descriptor present unless single segment
		pos++
	}
	size = [4]int{0, 1, 2, 4}[fhd&0x03]
	if len(frame) < pos+size {
		return 0, 0, false
	}

	return pos, size, true
}

// frameDictID returns the dictionary ID stored in a zstd frame header.
func frameDictID(frame []byte) (uint32, bool) {
	pos, size, ok := frameDictIDField(frame)
	if !ok {
		return 0, false
	}

	switch size {
	case 1:
		return uint32(frame[pos]), true
	case 2:
		return uint32(binary.LittleEndian.Uint16(frame[pos:])), true
	case 4:
		return binary.LittleEndian.Uint32(frame[pos:]), true
	default:
		return 0, true
	}
}

// stampFrameDictID returns frame with id written into its header.
// Frames that already carry an ID, and a zero id, are returned unchanged.
func stampFrameDictID(frame []byte, id uint32) []byte {
	pos, size, ok := frameDictIDField(frame)
	if !ok || size != 0 || id == 0 {
		return frame
	}

	var n int
	var flag byte
	switch {
	case id < 1<<8:
		n, flag = 1, 1
	case id < 1<<16:
		n, flag = 2, 2
	default:
		n, flag = 4, 3
	}

	out := make([]byte, len(frame)+n)
	copy(out, frame[:pos])
	out[4] |= flag
	var field [4]byte
	binary.LittleEndian.PutUint32(field[:], id)
	copy(out[pos:], field[:n])
	copy(out[pos+n:], frame[pos:])

	return out
}

// stripFrameDictID returns a copy of frame without the dictionary ID.
// frame itself is never modified.
func stripFrameDictID(frame []byte) []byte {
	pos, size, ok := frameDictIDField(frame)
	if !ok || size == 0 {
		return frame
	}

	out := make([]byte, len(frame)-size)
	copy(out, frame[:pos])
	out[4] &^= 0x03
	copy(out[pos:], frame[pos+size:])

	return out
}

// checkFrameDict fails with errs.ErrDictionaryMismatch when frame names a
// dictionary other than dict.
func checkFrameDict(dict, frame []byte) error {
	id, ok := frameDictID(frame)
	if !ok || id == 0 {
		return nil
	}

	if want := DictID(dict); id != want {
		return fmt.Errorf("%w: frame needs dictionary %d, got %d", errs.ErrDictionaryMismatch, id, want)
	}

	return nil
}

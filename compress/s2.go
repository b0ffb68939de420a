package compress

import (
	"fmt"

	"github.com/arloliu/dictstream/format"
	"github.com/klauspost/compress/s2"
)

// S2 dictionaries must be between 16 bytes and 64 KiB.
const (
	s2MinDictSize = 16
	s2MaxDictSize = 64 << 10
)

// S2Codec provides S2 compression with raw-content dictionaries.
//
// Only the last 64 KiB of a dictionary generation are used, since S2 cannot
// reference further back. Dictionaries shorter than 16 bytes fall back to
// plain S2 blocks.
type S2Codec struct {
	better bool
	api    DictAPI
}

var _ Codec = (*S2Codec)(nil)

// NewS2Codec creates a new S2 codec.
func NewS2Codec(opts ...CodecOption) (*S2Codec, error) {
	cfg, err := newCodecConfig(opts)
	if err != nil {
		return nil, err
	}

	return &S2Codec{better: cfg.level >= DefaultLevel, api: cfg.api}, nil
}

// Type returns format.CompressionS2.
func (c *S2Codec) Type() format.CompressionType {
	return format.CompressionS2
}

func makeS2Dict(dict []byte) *s2.Dict {
	if len(dict) > s2MaxDictSize {
		dict = dict[len(dict)-s2MaxDictSize:]
	}
	if len(dict) < s2MinDictSize {
		return nil
	}

	return s2.MakeDict(dict, nil)
}

// NewSession opens a compression session bound to dict.
func (c *S2Codec) NewSession(dict []byte) (Session, error) {
	if c.api == DictAPILoad {
		return &s2Session{better: c.better, raw: dict}, nil
	}

	return &s2Session{better: c.better, dict: makeS2Dict(dict)}, nil
}

// Decompress decompresses one block compressed with dict.
func (c *S2Codec) Decompress(dict, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	d := makeS2Dict(dict)
	if d == nil {
		return s2.Decode(nil, data)
	}

	decompressed, err := d.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}

	return decompressed, nil
}

type s2Session struct {
	better bool
	dict   *s2.Dict
	raw    []byte // set for DictAPILoad sessions
}

func (s *s2Session) Compress(block []byte) ([]byte, error) {
	d := s.dict
	if s.raw != nil {
		d = makeS2Dict(s.raw)
	}

	switch {
	case d == nil && s.better:
		return s2.EncodeBetter(nil, block), nil
	case d == nil:
		return s2.Encode(nil, block), nil
	case s.better:
		return d.EncodeBetter(nil, block), nil
	default:
		return d.Encode(nil, block), nil
	}
}

func (s *s2Session) Close() error {
	s.dict = nil
	s.raw = nil

	return nil
}

//go:build !cgo

package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/internal/hash"
	"github.com/klauspost/compress/zstd"
)

// zstdDecoderPool pools dictionary-less zstd decoders.
// The klauspost/compress/zstd decoder is designed to run without allocations after warmup.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}

		return decoder
	},
}

// zstdEncoderPool pools dictionary-less encoders at the default level.
var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(DefaultLevel)),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}

		return encoder
	},
}

func zstdEncoderDictOption(dict []byte) zstd.EOption {
	if IsZstdDict(dict) {
		return zstd.WithEncoderDict(dict)
	}

	return zstd.WithEncoderDictRaw(hash.DictID(dict), dict)
}

func zstdDecoderDictOption(dict []byte) zstd.DOption {
	if IsZstdDict(dict) {
		return zstd.WithDecoderDicts(dict)
	}

	return zstd.WithDecoderDictRaw(hash.DictID(dict), dict)
}

func (c *ZstdCodec) newEncoder(dict []byte) (*zstd.Encoder, error) {
	opts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
		zstd.WithEncoderCRC(false),
		zstd.WithEncoderConcurrency(1),
	}
	if len(dict) > 0 {
		opts = append(opts, zstdEncoderDictOption(dict))
	}

	encoder, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder with %d byte dictionary: %w", len(dict), err)
	}

	return encoder, nil
}

// NewSession opens a compression session bound to dict.
func (c *ZstdCodec) NewSession(dict []byte) (Session, error) {
	if len(dict) == 0 && c.level == DefaultLevel {
		encoder, _ := zstdEncoderPool.Get().(*zstd.Encoder)
		return &zstdPooledSession{encoder: encoder}, nil
	}

	if c.api == DictAPILoad {
		return &zstdLoadSession{codec: c, dict: dict}, nil
	}

	encoder, err := c.newEncoder(dict)
	if err != nil {
		return nil, err
	}

	return &zstdSession{encoder: encoder}, nil
}

// Decompress decompresses one block compressed with dict.
func (c *ZstdCodec) Decompress(dict, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if len(dict) == 0 {
		decoder, _ := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(decoder)

		decompressed, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}

		return decompressed, nil
	}

	if err := checkFrameDict(dict, data); err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstdDecoderDictOption(dict),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder with %d byte dictionary: %w", len(dict), err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if errors.Is(err, zstd.ErrUnknownDictionary) {
		return nil, fmt.Errorf("%w: %w", errs.ErrDictionaryMismatch, err)
	}
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	return decompressed, nil
}

type zstdPooledSession struct {
	encoder *zstd.Encoder
}

func (s *zstdPooledSession) Compress(block []byte) ([]byte, error) {
	return s.encoder.EncodeAll(block, nil), nil
}

func (s *zstdPooledSession) Close() error {
	if s.encoder != nil {
		zstdEncoderPool.Put(s.encoder)
		s.encoder = nil
	}

	return nil
}

type zstdSession struct {
	encoder *zstd.Encoder
}

func (s *zstdSession) Compress(block []byte) ([]byte, error) {
	return s.encoder.EncodeAll(block, nil), nil
}

func (s *zstdSession) Close() error {
	if s.encoder == nil {
		return nil
	}
	err := s.encoder.Close()
	s.encoder = nil

	return err
}

// zstdLoadSession loads the dictionary into a fresh encoder for every block.
type zstdLoadSession struct {
	codec *ZstdCodec
	dict  []byte
}

func (s *zstdLoadSession) Compress(block []byte) ([]byte, error) {
	encoder, err := s.codec.newEncoder(s.dict)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	return encoder.EncodeAll(block, nil), nil
}

func (s *zstdLoadSession) Close() error {
	return nil
}

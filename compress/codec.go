package compress

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/options"
)

// Session compresses the blocks of a single window with one fixed dictionary.
//
// A session owns whatever per-window state the algorithm needs (a prepared
// dictionary, an encoder with the dictionary loaded, a pooled block compressor)
// and reuses it across every block of the window. Sessions are not safe for
// concurrent use; each compression window opens its own.
type Session interface {
	// Compress compresses one block and returns a newly allocated slice owned by the caller.
	//
	// The block slice is not retained after the call returns, so callers may
	// pass views into reusable scratch buffers.
	Compress(block []byte) ([]byte, error)

	// Close releases the resources held by the session. It is safe to call more than once.
	Close() error
}

// Compressor opens compression sessions bound to a dictionary.
//
// An empty dictionary selects plain (dictionary-less) compression, which is how
// the pipeline compresses windows before the first dictionary generation exists.
type Compressor interface {
	// NewSession prepares a session that compresses blocks with dict.
	//
	// The dictionary slice must not be modified while the session is open.
	//
	// Returns:
	//   - Session: Session bound to dict
	//   - error: Dictionary rejected by the underlying library
	NewSession(dict []byte) (Session, error)
}

// Decompressor restores blocks produced by a Session.
//
// Example:
//
//	codec, _ := compress.CreateCodec(format.CompressionZstd)
//	original, err := codec.Decompress(dict, block)
//	if err != nil {
//	    return fmt.Errorf("decompression failed: %w", err)
//	}
type Decompressor interface {
	// Decompress decompresses one block that was compressed with dict.
	//
	// Returns an error if the data is corrupted or was compressed with a
	// different dictionary or algorithm.
	Decompress(dict, data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor

	// Type identifies the compression algorithm.
	Type() format.CompressionType
}

// DictAPI selects how a dictionary is handed to the compression library.
type DictAPI uint8

const (
	// DictAPIPrepared digests the dictionary once per session and reuses it for every block.
	DictAPIPrepared DictAPI = iota
	// DictAPILoad loads the raw dictionary again for every block.
	DictAPILoad
)

func (a DictAPI) String() string {
	switch a {
	case DictAPIPrepared:
		return "prepared"
	case DictAPILoad:
		return "load"
	default:
		return "unknown"
	}
}

// ParseDictAPI parses a dictionary API name ("prepared" or "load").
func ParseDictAPI(s string) (DictAPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prepared", "cdict":
		return DictAPIPrepared, nil
	case "load":
		return DictAPILoad, nil
	default:
		return 0, fmt.Errorf("%w: dictionary API %q", errs.ErrInvalidConfig, s)
	}
}

// DefaultLevel is the zstd-scale compression level used when none is configured.
const DefaultLevel = 3

type codecConfig struct {
	level int
	api   DictAPI
}

// CodecOption configures a codec created by CreateCodec or a New*Codec constructor.
type CodecOption = options.Option[*codecConfig]

// WithLevel sets the compression level on the zstd scale (1-22).
//
// S2 maps levels below 3 to its fastest mode and the rest to its better mode.
// LZ4 and None ignore the level.
func WithLevel(level int) CodecOption {
	return options.New(func(c *codecConfig) error {
		if level < 1 || level > 22 {
			return fmt.Errorf("%w: compression level %d out of range [1, 22]", errs.ErrInvalidConfig, level)
		}
		c.level = level

		return nil
	})
}

// WithDictAPI selects how dictionaries are loaded by the codec.
func WithDictAPI(api DictAPI) CodecOption {
	return options.New(func(c *codecConfig) error {
		if api != DictAPIPrepared && api != DictAPILoad {
			return fmt.Errorf("%w: dictionary API %d", errs.ErrInvalidConfig, api)
		}
		c.api = api

		return nil
	})
}

func newCodecConfig(opts []CodecOption) (codecConfig, error) {
	cfg := codecConfig{level: DefaultLevel, api: DictAPIPrepared}
	if err := options.Apply(&cfg, opts...); err != nil {
		return codecConfig{}, err
	}

	return cfg, nil
}

// CreateCodec is a factory function that creates a Codec based on the specified compression type.
//
// Parameters:
//   - compressionType: Type of compression (None, Zstd, S2, or LZ4)
//   - opts: Level and dictionary API options
//
// Returns:
//   - Codec: Codec instance for the specified type
//   - error: Unsupported compression type or invalid option
func CreateCodec(compressionType format.CompressionType, opts ...CodecOption) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCodec(), nil
	case format.CompressionZstd:
		return NewZstdCodec(opts...)
	case format.CompressionS2:
		return NewS2Codec(opts...)
	case format.CompressionLZ4:
		return NewLZ4Codec(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedCodec, compressionType)
	}
}

// Compress compresses data as a single block with dict.
//
// It is a convenience wrapper that opens a session, compresses and closes it.
func Compress(c Compressor, dict, data []byte) ([]byte, error) {
	s, err := c.NewSession(dict)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.Compress(data)
}

// CompressionStats provides detailed information about one compression window.
type CompressionStats struct {
	// Algorithm identifies the compression algorithm used
	Algorithm format.CompressionType

	// OriginalSize is the size of input data before compression
	OriginalSize int64

	// CompressedSize is the size of data after compression
	CompressedSize int64

	// DictSize is the size of the dictionary the data was compressed with
	DictSize int

	// Blocks is the number of blocks the window was split into
	Blocks int

	// Duration is the wall time spent compressing
	Duration time.Duration
}

// CompressionRatio returns the compressed size divided by the original size.
//
// Values less than 1.0 indicate successful compression.
//
// Returns:
//   - float64: Compression ratio (0.0 if original size is zero)
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// Factor returns the original size divided by the compressed size, the
// "x times smaller" figure reported for every window.
//
// Returns:
//   - float64: Compression factor (0.0 if nothing was produced)
func (s CompressionStats) Factor() float64 {
	if s.CompressedSize == 0 {
		return 0.0
	}

	return float64(s.OriginalSize) / float64(s.CompressedSize)
}

// SpaceSavings returns the space savings as a percentage (0-100%).
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

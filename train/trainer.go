// Package train provides dictionary trainers used by the dictstream pipeline.
//
// A trainer is a black box: it receives a flat buffer of training samples plus
// the size of each sample and returns a dictionary of at most maxDictSize bytes.
// The pipeline treats an empty or oversized result as a trainer failure.
package train

import (
	"fmt"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/options"
)

// DefaultMaxDictSize is the default upper bound for a trained dictionary (110 KiB).
const DefaultMaxDictSize = 112640

// Trainer derives a dictionary from training samples.
type Trainer interface {
	// Train builds a dictionary from len(sizes) samples laid out back to back in samples.
	//
	// Parameters:
	//   - samples: Concatenated sample bytes
	//   - sizes: Size of each sample; the sizes sum to at most len(samples)
	//   - maxDictSize: Upper bound for the returned dictionary
	//
	// Returns:
	//   - []byte: Dictionary, possibly empty when the samples are unusable
	//   - error: Trainer failure
	Train(samples []byte, sizes []int, maxDictSize int) ([]byte, error)
}

// Func adapts an ordinary function to the Trainer interface.
type Func func(samples []byte, sizes []int, maxDictSize int) ([]byte, error)

// Train calls f.
func (f Func) Train(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
	return f(samples, sizes, maxDictSize)
}

// SplitSamples returns one sub-slice of buf per entry in sizes.
//
// The returned slices alias buf. Empty samples are skipped.
func SplitSamples(buf []byte, sizes []int) ([][]byte, error) {
	out := make([][]byte, 0, len(sizes))
	off := 0
	for i, n := range sizes {
		if n < 0 || off+n > len(buf) {
			return nil, fmt.Errorf("%w: sample %d (%d bytes at offset %d) exceeds %d byte buffer",
				errs.ErrBoundsViolation, i, n, off, len(buf))
		}
		if n > 0 {
			out = append(out, buf[off:off+n])
		}
		off += n
	}

	return out, nil
}

type trainerConfig struct {
	level int
}

// TrainerOption configures a trainer created by New or NewZstdTrainer.
type TrainerOption = options.Option[*trainerConfig]

// WithLevel sets the compression level the trained dictionary is tuned for.
//
// Only the pure-Go zstd builder uses it; with cgo the level is validated and ignored.
func WithLevel(level int) TrainerOption {
	return options.New(func(c *trainerConfig) error {
		if level < 1 || level > 22 {
			return fmt.Errorf("%w: trainer level %d out of range [1, 22]", errs.ErrInvalidConfig, level)
		}
		c.level = level

		return nil
	})
}

// New creates a trainer of the given type.
func New(t format.TrainerType, opts ...TrainerOption) (Trainer, error) {
	switch t {
	case format.TrainerZstd:
		return NewZstdTrainer(opts...)
	case format.TrainerContent:
		return NewContentTrainer(), nil
	default:
		return nil, fmt.Errorf("%w: trainer %s", errs.ErrUnsupportedCodec, t)
	}
}

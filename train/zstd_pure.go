//go:build !cgo

package train

import (
	"fmt"

	"github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
)

// minBuildSamples is the smallest sample count dict.BuildZstdDict accepts.
const minBuildSamples = 2

// Train builds a dictionary with klauspost/compress/dict.
//
// Sample sets the builder cannot work with yield an empty dictionary, like
// libzstd's trainer does. A panic inside the builder is returned as an error.
func (t *ZstdTrainer) Train(samples []byte, sizes []int, maxDictSize int) (d []byte, err error) {
	parts, err := SplitSamples(samples, sizes)
	if err != nil {
		return nil, err
	}
	if len(parts) < minBuildSamples {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("zstd dictionary build panicked on %d samples: %v", len(parts), r)
		}
	}()

	d, err = dict.BuildZstdDict(parts, dict.Options{
		MaxDictSize:    maxDictSize,
		HashBytes:      6,
		ZstdDictCompat: true,
		ZstdLevel:      zstd.EncoderLevelFromZstd(t.level),
	})
	if err != nil {
		return nil, fmt.Errorf("zstd dictionary build: %w", err)
	}

	return d, nil
}

//go:build cgo

package train

import "github.com/valyala/gozstd"

// Train builds a dictionary with ZDICT_trainFromBuffer.
//
// gozstd reports training failures (typically too few or too uniform samples)
// as an empty dictionary, which the pipeline treats as a trainer failure.
// The trainer level has no effect here.
func (t *ZstdTrainer) Train(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
	parts, err := SplitSamples(samples, sizes)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, nil
	}

	return gozstd.BuildDict(parts, maxDictSize), nil
}

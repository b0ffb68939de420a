package pipeline

import (
	"fmt"
	"math/bits"

	"github.com/arloliu/dictstream/errs"
)

// DefaultSampleSeed is the fixed seed of the sample position generator.
const DefaultSampleSeed uint32 = 0xFD2FB528

// sampleRand is the multiplicative/xor/rotate generator used to spread samples.
// It is deterministic and reseeded on every selection.
type sampleRand struct {
	state uint32
}

func (r *sampleRand) next() uint32 {
	const (
		prime1 uint32 = 2654435761
		prime2 uint32 = 2246822519
	)

	x := r.state * prime1
	x ^= prime2
	x = bits.RotateLeft32(x, 13)
	r.state = x

	return x >> 5
}

// Sampler chooses training sample positions inside the lookahead window that
// starts at the cursor.
//
// Algorithm:
//  1. nbSamples = ceil(trainChunkSize / blockSize), chunk = windowSize / nbSamples
//  2. offset[i] = rand() mod chunk + i*chunk
//  3. if windowSize - offset[i] < blockSize, shift offset[i] left by blockSize
//
// Offsets are spread pseudo-randomly across the whole window rather than taken
// from its head, so the dictionary is not trained on exactly the first bytes
// of the next compression window. The same parameters always yield the same
// offsets.
type Sampler struct {
	trainChunkSize int
	blockSize      int
	seed           uint32
}

// NewSampler creates a sampler for the given training chunk and block size.
func NewSampler(trainChunkSize, blockSize int) (Sampler, error) {
	if trainChunkSize <= 0 || blockSize <= 0 {
		return Sampler{}, fmt.Errorf("%w: train chunk %d and block size %d must be positive",
			errs.ErrInvalidConfig, trainChunkSize, blockSize)
	}

	return Sampler{trainChunkSize: trainChunkSize, blockSize: blockSize, seed: DefaultSampleSeed}, nil
}

// WithSeed returns a copy of s using seed.
func (s Sampler) WithSeed(seed uint32) Sampler {
	s.seed = seed
	return s
}

// NumSamples returns ceil(trainChunkSize / blockSize).
func (s Sampler) NumSamples() int {
	return (s.trainChunkSize + s.blockSize - 1) / s.blockSize
}

// SampleSizes fills sizes with the size of each sample: blockSize for all but
// the last, which takes the remainder of the training chunk.
func (s Sampler) SampleSizes(sizes []int) {
	left := s.trainChunkSize
	for i := range sizes {
		n := min(s.blockSize, left)
		sizes[i] = n
		left -= n
	}
}

// SampleSet is the result of a selection: offsets relative to the window start
// and the matching sample sizes.
type SampleSet struct {
	Offsets []int
	Sizes   []int
}

// Total returns the number of sampled bytes.
func (ss SampleSet) Total() int {
	total := 0
	for _, n := range ss.Sizes {
		total += n
	}

	return total
}

// Select picks sample positions inside a window of windowSize bytes.
//
// Returns ErrInsufficientLookahead if the window is smaller than the training chunk.
func (s Sampler) Select(windowSize int) (SampleSet, error) {
	n := s.NumSamples()
	set := SampleSet{Offsets: make([]int, n), Sizes: make([]int, n)}
	if err := s.SelectInto(set.Offsets, set.Sizes, windowSize); err != nil {
		return SampleSet{}, err
	}

	return set, nil
}

// SelectInto is Select writing into caller-provided slices of NumSamples() elements.
func (s Sampler) SelectInto(offsets, sizes []int, windowSize int) error {
	n := s.NumSamples()
	if len(offsets) != n || len(sizes) != n {
		return fmt.Errorf("%w: need %d sample slots, got %d offsets and %d sizes",
			errs.ErrBoundsViolation, n, len(offsets), len(sizes))
	}
	if windowSize < s.trainChunkSize {
		return fmt.Errorf("%w: window %d bytes, training chunk %d bytes",
			errs.ErrInsufficientLookahead, windowSize, s.trainChunkSize)
	}

	s.SampleSizes(sizes)

	rng := sampleRand{state: s.seed}
	chunk := windowSize / n
	for i := range offsets {
		off := int(rng.next())%chunk + i*chunk
		if windowSize-off < s.blockSize {
			off -= s.blockSize
		}
		// Only reachable for windows shorter than two blocks.
		off = max(off, 0)

		if off+sizes[i] > windowSize {
			return fmt.Errorf("%w: sample %d [%d, %d) outside %d byte window",
				errs.ErrBoundsViolation, i, off, off+sizes[i], windowSize)
		}
		offsets[i] = off
	}

	return nil
}

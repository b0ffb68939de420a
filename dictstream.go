// Package dictstream trains compression dictionaries on the fly while it
// compresses a byte stream with them.
//
// A training worker repeatedly samples the lookahead window in front of the
// compression cursor and trains a dictionary; a compression worker compresses
// the source window by window with the dictionary generations the trainer
// publishes. The two workers hand dictionaries over through a single shared
// slot instead of a queue, so at most one generation is ever in flight.
//
// # Core Features
//
//   - Dictionary-aware block codecs: zstd (prepared or per-block dictionaries), S2, LZ4, none
//   - zstd dictionary training (COVER under cgo, klauspost dict builder otherwise) or raw-content dictionaries
//   - Retrain policies: continuous, once, adaptive and adaptive-floor
//   - Deterministic sample selection, reproducible across runs
//   - Concurrent or sequential execution with identical results
//   - Per-window metrics, dictionary events and a run report
//
// # Basic Usage
//
// Compressing a buffer with default settings:
//
//	import "github.com/arloliu/dictstream"
//
//	report, err := dictstream.Run(ctx, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("ratio %.2f with %d dictionaries\n", report.Ratio(), report.Generations)
//
// Keeping the compressed output and checking it restores the source:
//
//	report, sink, err := dictstream.RunWithSink(ctx, data,
//	    pipeline.WithPolicy(format.PolicyAdaptive),
//	)
//	restored, err := sink.Decompress(codec)
//
// # Package Structure
//
// This package provides convenience wrappers around the pipeline package. For
// fine-grained control (custom policies, observers, sinks) use pipeline directly;
// compress and train hold the codec and trainer implementations.
package dictstream

import (
	"context"
	"fmt"

	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/hash"
	"github.com/arloliu/dictstream/pipeline"
)

var defaultOptions = []pipeline.Option{
	pipeline.WithBlockSize(pipeline.DefaultBlockSize),
	pipeline.WithTrainChunkSize(pipeline.DefaultTrainChunkSize),
	pipeline.WithCompressChunkSize(pipeline.DefaultCompressChunkSize),
	pipeline.WithMaxDictSize(pipeline.DefaultMaxDictSize),
	pipeline.WithPolicy(format.PolicyContinuous),
	pipeline.WithGenerationLag(true),
}

// NewPipeline creates a pipeline over src with custom options.
//
// Parameters:
//   - src: The data to compress; it must not be modified until the run returns
//   - opts: Optional configuration functions (see pipeline.Option)
//
// Returns:
//   - *pipeline.Pipeline: The created pipeline
//   - error: An error if src is empty or the configuration is invalid
//
// Example:
//
//	p, err := dictstream.NewPipeline(data,
//	    pipeline.WithTrainChunkSize(512<<10),
//	    pipeline.WithPolicy(format.PolicyOnce),
//	)
func NewPipeline(src []byte, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	return pipeline.New(src, opts...)
}

// NewDefaultPipeline creates a pipeline with the recommended settings:
//   - 4 KiB blocks, 1 MiB training chunks, 5 MiB compression windows
//   - 110 KiB dictionaries trained with zstd, compressed with zstd level 3
//   - Continuous retraining with the one-generation lag
func NewDefaultPipeline(src []byte) (*pipeline.Pipeline, error) {
	return pipeline.New(src, defaultOptions...)
}

// NewAdaptivePipeline creates a pipeline that only retrains when the compression
// signal degrades.
//
// With a positive floor and retrainOnFloor set, windows below the floor also
// trigger retraining (format.PolicyAdaptiveFloor). Extra options are applied
// after the defaults.
func NewAdaptivePipeline(src []byte, params pipeline.AdaptiveParams, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	policy := format.PolicyAdaptive
	if params.RetrainOnFloor {
		policy = format.PolicyAdaptiveFloor
	}

	allOpts := append(append([]pipeline.Option{}, defaultOptions...),
		pipeline.WithPolicy(policy), pipeline.WithAdaptiveParams(params))

	return pipeline.New(src, append(allOpts, opts...)...)
}

// Run creates a pipeline over src and runs it to completion.
func Run(ctx context.Context, src []byte, opts ...pipeline.Option) (*pipeline.Report, error) {
	p, err := pipeline.New(src, opts...)
	if err != nil {
		return nil, err
	}

	return p.Run(ctx)
}

// RunWithSink is Run with an in-memory sink that retains every compressed window.
//
// A sink given in opts is replaced.
func RunWithSink(ctx context.Context, src []byte, opts ...pipeline.Option) (*pipeline.Report, *pipeline.MemorySink, error) {
	sink := pipeline.NewMemorySink()
	rep, err := Run(ctx, src, append(opts, pipeline.WithSink(sink))...)

	return rep, sink, err
}

// RoundTrip runs a pipeline over src and verifies that the compressed windows
// restore src with the dictionaries they were compressed with.
func RoundTrip(ctx context.Context, src []byte, opts ...pipeline.Option) (*pipeline.Report, error) {
	sink := pipeline.NewMemorySink()
	p, err := pipeline.New(src, append(opts, pipeline.WithSink(sink))...)
	if err != nil {
		return nil, err
	}

	rep, err := p.Run(ctx)
	if err != nil {
		return rep, err
	}
	if err := sink.Verify(p.Config().Codec(), src); err != nil {
		return rep, fmt.Errorf("round trip: %w", err)
	}

	return rep, nil
}

// Fingerprint returns the 64-bit xxHash of a dictionary, as reported in
// pipeline.DictionaryEvent.
func Fingerprint(dict []byte) uint64 {
	return hash.Fingerprint(dict)
}

// DictID returns the zstd dictionary ID used when dict is loaded as raw content.
func DictID(dict []byte) uint32 {
	return hash.DictID(dict)
}

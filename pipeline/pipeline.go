package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/internal/options"
)

// Pipeline owns the source and the slot of one run and drives the train and
// compress coordinators.
//
// A Pipeline runs once; create a new one for every source.
type Pipeline struct {
	cfg *Config
	src *Source
	ran atomic.Bool
}

// New creates a pipeline over src.
//
// The caller must not modify src until Run returns.
//
// Returns:
//   - *Pipeline: Pipeline ready to run
//   - error: ErrEmptySource for an empty src, ErrInvalidConfig for invalid options
func New(src []byte, opts ...Option) (*Pipeline, error) {
	if len(src) == 0 {
		return nil, errs.ErrEmptySource
	}

	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	if _, err := NewSampler(cfg.trainChunkSize, cfg.blockSize); err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, src: NewSource(src)}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() *Config {
	return p.cfg
}

// Run trains and compresses the whole source.
//
// Cancelling ctx aborts the run: the slot goes Aborted and both coordinators
// stop at their next wake-up. Fatal conditions are returned wrapped in
// errs.ErrAborted together with the partial report; non-fatal ones only show
// up as Report.TerminalReason.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.ran.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: pipeline already ran", errs.ErrInvalidConfig)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrAborted, err)
	}

	runID := uuid.NewString()
	cfg := *p.cfg
	cfg.logger = p.cfg.logger.With("run_id", runID)
	logger := cfg.logger

	slot := NewSlot(p.src.Size())
	col := newCollector(cfg.observers)
	tc, err := NewTrainCoordinator(slot, p.src, &cfg, col)
	if err != nil {
		return nil, err
	}
	tc.ctx = ctx
	cc := NewCompressCoordinator(slot, p.src, &cfg, col)

	stop := context.AfterFunc(ctx, func() {
		if slot.MarkAborted(context.Cause(ctx)) {
			logger.Error("dictstream: run cancelled", "consumed", slot.Consumed())
		}
	})
	defer stop()

	logger.Info("dictstream: run started",
		"source_size", p.src.Size(), "codec", cfg.codec.Type(), "policy", cfg.policy.Type(),
		"block_size", cfg.blockSize, "train_chunk_size", cfg.trainChunkSize,
		"compress_chunk_size", cfg.compressChunkSize, "sequential", cfg.sequential)

	start := time.Now()
	var trainOut TrainOutcome
	var compressOut CompressOutcome
	if cfg.sequential {
		trainOut, compressOut = runSequential(slot, tc, cc)
	} else {
		trainOut, compressOut = runConcurrent(slot, tc, cc)
	}

	rep := &Report{
		RunID:             runID,
		Codec:             cfg.codec.Type().String(),
		Policy:            cfg.policy.Type().String(),
		BlockSize:         cfg.blockSize,
		TrainChunkSize:    cfg.trainChunkSize,
		CompressChunkSize: cfg.compressChunkSize,
		MaxDictSize:       cfg.maxDictSize,
		GenerationLag:     cfg.generationLag,
		Sequential:        cfg.sequential,
		SourceSize:        p.src.Size(),
		Consumed:          slot.Consumed(),
		Generations:       slot.Latest(),
		FinalState:        slot.State(),
		Elapsed:           time.Since(start),
	}
	rep.accumulate(col.snapshot())
	if reason := slot.Reason(); reason != nil {
		rep.TerminalReason = reason.Error()
	}

	if err := runError(slot, compressOut); err != nil {
		rep.Error = err.Error()
		logger.Error("dictstream: run aborted",
			"consumed", rep.Consumed, "windows", rep.Windows, "error", err.Error())

		return rep, err
	}

	logger.Info("dictstream: run finished",
		"consumed", rep.Consumed, "compressed", rep.CompressedSize, "ratio", rep.Ratio(),
		"generations", rep.Generations, "windows", rep.Windows, "train_outcome", trainOut.Kind,
		"terminal_reason", rep.TerminalReason, "elapsed", rep.Elapsed)

	return rep, nil
}

// runConcurrent runs both coordinators on their own goroutine and joins them.
func runConcurrent(slot *Slot, tc *TrainCoordinator, cc *CompressCoordinator) (TrainOutcome, CompressOutcome) {
	var (
		wg          sync.WaitGroup
		trainOut    TrainOutcome
		compressOut CompressOutcome
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		trainOut = tc.Run()
	}()
	go func() {
		defer wg.Done()
		compressOut = cc.Run()
		// Releases a trainer still waiting for its turn.
		slot.MarkTerminal(errs.ErrSourceExhausted)
	}()
	wg.Wait()

	return trainOut, compressOut
}

// runSequential alternates training and compression steps on the calling goroutine.
//
// Training only runs when the slot is Empty, so neither step ever blocks.
func runSequential(slot *Slot, tc *TrainCoordinator, cc *CompressCoordinator) (TrainOutcome, CompressOutcome) {
	var (
		trainOut    TrainOutcome
		compressOut CompressOutcome
	)

	for {
		if slot.State() == StateEmpty {
			trainOut = tc.Step()
		}
		compressOut = cc.Step()
		if compressOut.Kind != Compressed {
			break
		}
	}
	slot.MarkTerminal(errs.ErrSourceExhausted)

	return trainOut, compressOut
}

func runError(slot *Slot, out CompressOutcome) error {
	if err := slot.Err(); err != nil {
		return err
	}
	if out.Kind == CompressFailed {
		if out.Err == nil {
			return errs.ErrAborted
		}
		if !errors.Is(out.Err, errs.ErrAborted) {
			return fmt.Errorf("%w: %w", errs.ErrAborted, out.Err)
		}

		return out.Err
	}

	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/internal/hash"
	"github.com/arloliu/dictstream/internal/pool"
	"github.com/arloliu/dictstream/train"
)

// TrainOutcomeKind tags the result of one training step.
type TrainOutcomeKind uint8

const (
	// Trained means a new generation was published.
	Trained TrainOutcomeKind = iota + 1
	// NotEnoughData means training stopped for good; the slot is Terminal.
	NotEnoughData
	// TrainFailed means the trainer failed (slot Terminal) or the run aborted (slot Aborted).
	TrainFailed
)

func (k TrainOutcomeKind) String() string {
	switch k {
	case Trained:
		return "trained"
	case NotEnoughData:
		return "not-enough-data"
	case TrainFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TrainOutcome is the result of TrainCoordinator.Step.
type TrainOutcome struct {
	Kind       TrainOutcomeKind
	Generation Generation
	Event      DictionaryEvent
	Err        error
}

// Fatal reports whether the outcome aborted the run.
func (o TrainOutcome) Fatal() bool {
	return errs.IsFatal(o.Err)
}

// TrainCoordinator produces dictionary generations into the slot.
//
// Each step samples the lookahead window that starts at the cursor, trains a
// dictionary from the samples and publishes it. Sampling reads ahead of the
// cursor but never moves it; consumption belongs to the compress coordinator.
type TrainCoordinator struct {
	ctx      context.Context
	slot     *Slot
	src      *Source
	sampler  Sampler
	trainer  train.Trainer
	policy   RetrainPolicy
	observer Observer
	logger   *slog.Logger

	trainChunkSize    int
	compressChunkSize int
	maxDictSize       int
}

// NewTrainCoordinator creates a train coordinator from a finished configuration.
func NewTrainCoordinator(slot *Slot, src *Source, cfg *Config, observer Observer) (*TrainCoordinator, error) {
	sampler, err := NewSampler(cfg.trainChunkSize, cfg.blockSize)
	if err != nil {
		return nil, err
	}

	return &TrainCoordinator{
		ctx:               context.Background(),
		slot:              slot,
		src:               src,
		sampler:           sampler.WithSeed(cfg.sampleSeed),
		trainer:           cfg.trainer,
		policy:            cfg.policy,
		observer:          observer,
		logger:            cfg.logger,
		trainChunkSize:    cfg.trainChunkSize,
		compressChunkSize: cfg.compressChunkSize,
		maxDictSize:       cfg.maxDictSize,
	}, nil
}

// Run steps until training stops and returns the final outcome.
func (c *TrainCoordinator) Run() TrainOutcome {
	for {
		out := c.Step()
		if out.Kind != Trained {
			return out
		}
	}
}

// Step waits for the trainer's turn and performs one training attempt.
func (c *TrainCoordinator) Step() TrainOutcome {
	ticket := c.slot.AcquireForTraining()
	switch ticket.State {
	case StateTerminal:
		return TrainOutcome{Kind: NotEnoughData, Err: c.slot.Reason()}
	case StateAborted:
		return TrainOutcome{Kind: TrainFailed, Err: c.slot.Err()}
	}

	remaining := ticket.Remaining()
	if threshold := c.policy.TrainThreshold(c.trainChunkSize); remaining <= threshold {
		return c.stop(fmt.Errorf("%w: %d bytes remaining, threshold %d", errs.ErrNotEnoughData, remaining, threshold))
	}

	windowSize := min(remaining, c.compressChunkSize)
	n := c.sampler.NumSamples()
	offsets, releaseOffsets := pool.GetInts(n)
	defer releaseOffsets()
	sizes, releaseSizes := pool.GetInts(n)
	defer releaseSizes()

	if err := c.sampler.SelectInto(offsets, sizes, windowSize); err != nil {
		if errors.Is(err, errs.ErrInsufficientLookahead) {
			return c.stop(err)
		}
		return c.abort(err)
	}

	set := SampleSet{Offsets: offsets, Sizes: sizes}
	samples, releaseSamples := pool.GetBytes(set.Total())
	defer releaseSamples()

	window, err := c.src.Window(ticket.Consumed, windowSize)
	if err != nil {
		return c.abort(err)
	}
	pos := 0
	for i, off := range offsets {
		if err := copyExact(samples[pos:pos+sizes[i]], window[off:off+sizes[i]]); err != nil {
			return c.abort(fmt.Errorf("sample %d: %w", i, err))
		}
		pos += sizes[i]
	}

	start := time.Now()
	trained, err := c.train(samples, sizes)
	elapsed := time.Since(start)
	// A run cancelled while the trainer was busy publishes nothing.
	if c.ctx.Err() != nil {
		return c.abort(context.Cause(c.ctx))
	}
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", errs.ErrTrainerFailure, err))
	}
	if len(trained) == 0 || len(trained) > c.maxDictSize {
		return c.fail(fmt.Errorf("%w: dictionary size %d, limit %d", errs.ErrTrainerFailure, len(trained), c.maxDictSize))
	}

	// The trainer may return a view of the pooled sample buffer.
	dict := make([]byte, len(trained))
	if err := copyExact(dict, trained); err != nil {
		return c.abort(err)
	}

	gen, err := c.slot.Publish(dict, c.policy.FreezeFirst())
	if err != nil {
		if state := c.slot.State(); state == StateAborted {
			return TrainOutcome{Kind: TrainFailed, Err: c.slot.Err()}
		}
		return TrainOutcome{Kind: NotEnoughData, Err: c.slot.Reason()}
	}

	ev := DictionaryEvent{
		Generation:  gen.Seq,
		Size:        gen.Size(),
		Fingerprint: hash.Fingerprint(gen.Dict),
		WindowStart: ticket.Consumed,
		WindowSize:  windowSize,
		Samples:     n,
		SampleBytes: len(samples),
		Elapsed:     elapsed,
		Dict:        gen.Dict,
	}
	c.logger.Info("dictstream: dictionary published",
		"generation", gen.Seq, "size", gen.Size(), "window_start", ticket.Consumed,
		"samples", n, "elapsed", elapsed)
	c.observer.OnDictionary(ev)

	return TrainOutcome{Kind: Trained, Generation: gen, Event: ev}
}

// train calls the trainer and turns a panic into an error.
func (c *TrainCoordinator) train(samples []byte, sizes []int) (dict []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			dict, err = nil, fmt.Errorf("trainer panic: %v", r)
		}
	}()

	return c.trainer.Train(samples, sizes, c.maxDictSize)
}

// stop moves the slot to Terminal because no more training is possible.
func (c *TrainCoordinator) stop(reason error) TrainOutcome {
	if c.slot.MarkTerminal(reason) {
		c.logger.Info("dictstream: training stopped", "reason", reason.Error(), "consumed", c.slot.Consumed())
	}

	return TrainOutcome{Kind: NotEnoughData, Err: reason}
}

// fail records a non-fatal trainer failure; compression continues with the last generation.
func (c *TrainCoordinator) fail(err error) TrainOutcome {
	if c.slot.MarkTerminal(err) {
		c.logger.Warn("dictstream: dictionary training failed", "error", err.Error())
	}

	return TrainOutcome{Kind: TrainFailed, Err: err}
}

func (c *TrainCoordinator) abort(err error) TrainOutcome {
	if c.slot.MarkAborted(err) {
		c.logger.Error("dictstream: training aborted", "error", err.Error())
	}

	return TrainOutcome{Kind: TrainFailed, Err: fmt.Errorf("%w: %w", errs.ErrAborted, err)}
}

package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/internal/pool"
)

// CompressOutcomeKind tags the result of one compression step.
type CompressOutcomeKind uint8

const (
	// Done means the whole source has been consumed.
	Done CompressOutcomeKind = iota + 1
	// Compressed means one window was compressed and consumed.
	Compressed
	// CompressFailed means the run aborted.
	CompressFailed
)

func (k CompressOutcomeKind) String() string {
	switch k {
	case Done:
		return "done"
	case Compressed:
		return "compressed"
	case CompressFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CompressOutcome is the result of CompressCoordinator.Step.
type CompressOutcome struct {
	Kind    CompressOutcomeKind
	Output  WindowOutput
	Metrics ChunkMetrics
	Err     error
}

// CompressCoordinator consumes dictionary generations from the slot and
// compresses the source window by window.
type CompressCoordinator struct {
	slot     *Slot
	src      *Source
	codec    compress.Codec
	policy   RetrainPolicy
	sink     Sink
	observer Observer
	logger   *slog.Logger

	blockSize         int
	compressChunkSize int
	lag               bool
	baseline          bool

	window int
}

// NewCompressCoordinator creates a compress coordinator from a finished configuration.
func NewCompressCoordinator(slot *Slot, src *Source, cfg *Config, observer Observer) *CompressCoordinator {
	return &CompressCoordinator{
		slot:              slot,
		src:               src,
		codec:             cfg.codec,
		policy:            cfg.policy,
		sink:              cfg.sink,
		observer:          observer,
		logger:            cfg.logger,
		blockSize:         cfg.blockSize,
		compressChunkSize: cfg.compressChunkSize,
		lag:               cfg.generationLag,
		baseline:          cfg.baseline,
	}
}

// Run steps until the source is exhausted or the run aborts and returns the final outcome.
func (c *CompressCoordinator) Run() CompressOutcome {
	for {
		out := c.Step()
		if out.Kind != Compressed {
			return out
		}
	}
}

// Step compresses the next window.
//
// It blocks while the slot is Empty, i.e. while the trainer is producing the
// generation this window is waiting for.
func (c *CompressCoordinator) Step() CompressOutcome {
	if c.slot.Consumed() >= c.src.Size() {
		return CompressOutcome{Kind: Done}
	}

	lease := c.slot.AcquireForCompression()
	if lease.State == StateAborted {
		return CompressOutcome{Kind: CompressFailed, Err: c.slot.Err()}
	}
	remaining := lease.Remaining()
	if remaining == 0 {
		return CompressOutcome{Kind: Done}
	}

	gen := c.policy.Select(lease, c.lag)
	if gen.Seq > lease.Latest {
		return c.abort(fmt.Errorf("%w: generation %d selected, latest published is %d",
			errs.ErrBoundsViolation, gen.Seq, lease.Latest))
	}

	start := time.Now()
	size := min(remaining, c.compressChunkSize)
	blocks, sizes, compressedSize, err := c.compressWindow(gen.Dict, lease.Consumed, size)
	if err != nil {
		return c.abort(err)
	}

	baselineSize := 0
	if c.baseline && !gen.IsEmpty() {
		baselineSize, err = c.measureBaseline(lease.Consumed, size)
		if err != nil {
			return c.abort(err)
		}
	} else if c.baseline {
		baselineSize = compressedSize
	}

	stats := WindowStats{
		Window:         c.window,
		Generation:     gen.Seq,
		DictSize:       gen.Size(),
		RawSize:        size,
		CompressedSize: compressedSize,
		BaselineSize:   baselineSize,
		Terminal:       lease.State == StateTerminal,
	}
	decision := c.policy.Next(stats)
	next, reason := decision.Next, decision.Reason
	if size == remaining && next != StateTerminal {
		next, reason = StateTerminal, errs.ErrSourceExhausted
	}

	consumed, err := c.slot.MarkConsumed(size, next, reason)
	if err != nil {
		return CompressOutcome{Kind: CompressFailed, Err: err}
	}
	elapsed := time.Since(start)

	effective := next
	if lease.State == StateTerminal {
		effective = StateTerminal
	}

	output := WindowOutput{
		Window:     c.window,
		Offset:     lease.Consumed,
		Generation: gen,
		Blocks:     blocks,
		BlockSizes: sizes,
	}
	if c.sink != nil {
		if err := c.sink.WriteWindow(output); err != nil {
			return c.abort(fmt.Errorf("sink window %d: %w", c.window, err))
		}
	}

	metrics := ChunkMetrics{
		Window:          c.window,
		Offset:          lease.Consumed,
		Size:            size,
		Blocks:          len(blocks),
		CompressedSize:  compressedSize,
		BaselineSize:    baselineSize,
		Generation:      gen.Seq,
		DictSize:        gen.Size(),
		LatestPublished: lease.Latest,
		Ratio:           stats.Ratio(),
		MatchRatio:      stats.MatchRatio(),
		Anomaly:         decision.Anomaly,
		State:           lease.State,
		Decision:        effective,
		Why:             decision.Why,
		Elapsed:         elapsed,
	}

	c.logger.Debug("dictstream: window compressed",
		"window", c.window, "offset", lease.Consumed, "size", size,
		"compressed", compressedSize, "generation", gen.Seq, "next", effective, "why", decision.Why)
	if decision.Anomaly {
		c.logger.Warn("dictstream: compression ratio below floor",
			"window", c.window, "generation", gen.Seq, "ratio", stats.Signal())
	}

	c.observer.OnProgress(ProgressReport{TotalConsumed: consumed, SrcSize: lease.SrcSize})
	c.observer.OnChunk(metrics)
	c.window++

	return CompressOutcome{Kind: Compressed, Output: output, Metrics: metrics}
}

// compressWindow copies size bytes at off into scratch memory and compresses
// them block by block with a private copy of dict.
func (c *CompressCoordinator) compressWindow(dict []byte, off, size int) ([][]byte, []int, int, error) {
	dictBuf, releaseDict := pool.GetBytes(len(dict))
	defer releaseDict()
	if err := copyExact(dictBuf, dict); err != nil {
		return nil, nil, 0, fmt.Errorf("dictionary: %w", err)
	}

	windowBuf, releaseWindow := pool.GetBytes(size)
	defer releaseWindow()
	if err := c.src.CopyWindow(windowBuf, off); err != nil {
		return nil, nil, 0, err
	}

	session, err := c.codec.NewSession(dictBuf)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%s session: %w", c.codec.Type(), err)
	}
	defer session.Close()

	nbBlocks := (size + c.blockSize - 1) / c.blockSize
	blocks := make([][]byte, 0, nbBlocks)
	sizes := make([]int, 0, nbBlocks)
	total := 0

	for pos := 0; pos < size; {
		n := min(c.blockSize, size-pos)
		if n <= 0 || pos+n > size {
			return nil, nil, 0, fmt.Errorf("%w: block [%d, %d) outside %d byte window",
				errs.ErrBoundsViolation, pos, pos+n, size)
		}

		out, err := session.Compress(windowBuf[pos : pos+n])
		if err != nil {
			return nil, nil, 0, fmt.Errorf("block at %d: %w", off+pos, err)
		}
		blocks = append(blocks, out)
		sizes = append(sizes, n)
		total += len(out)
		pos += n
	}

	return blocks, sizes, total, nil
}

// measureBaseline compresses the same window without a dictionary and returns the compressed size.
func (c *CompressCoordinator) measureBaseline(off, size int) (int, error) {
	_, _, total, err := c.compressWindow(nil, off, size)
	if err != nil {
		return 0, fmt.Errorf("baseline: %w", err)
	}

	return total, nil
}

func (c *CompressCoordinator) abort(err error) CompressOutcome {
	if c.slot.MarkAborted(err) {
		c.logger.Error("dictstream: compression aborted", "window", c.window, "error", err.Error())
	}

	if errors.Is(err, errs.ErrAborted) {
		return CompressOutcome{Kind: CompressFailed, Err: err}
	}

	return CompressOutcome{Kind: CompressFailed, Err: fmt.Errorf("%w: %w", errs.ErrAborted, err)}
}

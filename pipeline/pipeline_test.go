package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/hash"
	"github.com/arloliu/dictstream/train"
	"github.com/stretchr/testify/require"
)

const runTimeout = 30 * time.Second

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// sensorLog produces n bytes of repetitive telemetry text.
func sensorLog(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	rooms := []string{"kitchen", "bedroom-1", "bedroom-2", "hall", "garage"}
	kinds := []string{"temperature", "humidity", "motion", "door"}

	out := make([]byte, 0, n+128)
	for len(out) < n {
		out = fmt.Appendf(out, `{"ts":%d,"room":"%s","sensor":"%s","value":%d.%d,"battery":%d}`+"\n",
			1700000000+rng.Intn(86400), rooms[rng.Intn(len(rooms))], kinds[rng.Intn(len(kinds))],
			rng.Intn(40), rng.Intn(10), 50+rng.Intn(50))
	}

	return out[:n]
}

// fakeTrainer returns a small deterministic dictionary per call and can be told
// to return empty dictionaries on given (1-based) calls.
type fakeTrainer struct {
	mu    sync.Mutex
	calls int
	empty map[int]bool
}

func (f *fakeTrainer) Train(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.empty[f.calls] {
		return nil, nil
	}

	return fmt.Appendf(nil, "generation %d trained on %d samples", f.calls, len(sizes)), nil
}

func (f *fakeTrainer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// runWithTimeout fails the test instead of hanging when the run deadlocks.
func runWithTimeout(t *testing.T, ctx context.Context, p *Pipeline) (*Report, error) {
	t.Helper()

	type result struct {
		rep *Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := p.Run(ctx)
		done <- result{rep, err}
	}()

	select {
	case r := <-done:
		return r.rep, r.err
	case <-time.After(runTimeout):
		t.Fatal("pipeline run did not finish")
		return nil, nil
	}
}

func chunkGenerations(chunks []ChunkMetrics) []uint64 {
	gens := make([]uint64, len(chunks))
	for i, c := range chunks {
		gens[i] = c.Generation
	}

	return gens
}

// scenarioOptions are the 1 MiB train / 1 MiB compress / 4 KiB block settings.
func scenarioOptions(trainer train.Trainer, extra ...Option) []Option {
	opts := []Option{
		WithTrainChunkSize(1 << 20),
		WithCompressChunkSize(1 << 20),
		WithBlockSize(4096),
		WithTrainer(trainer),
		WithCodec(compress.NewNoOpCodec()),
		WithLogger(discardLogger),
	}

	return append(opts, extra...)
}

type mode struct {
	name string
	opts []Option
}

var modes = []mode{
	{"concurrent", nil},
	{"sequential", []Option{WithSequential()}},
}

func TestPipeline_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		srcSize     int
		policy      format.PolicyType
		empty       map[int]bool
		generations uint64
		trainCalls  int
		windows     []uint64
		reason      error
	}{
		{
			name:        "continuous trains two generations for three windows",
			srcSize:     3 << 20,
			policy:      format.PolicyContinuous,
			generations: 2,
			trainCalls:  2,
			windows:     []uint64{0, 1, 1},
			reason:      errs.ErrNotEnoughData,
		},
		{
			name:        "once trains one generation for every window",
			srcSize:     3 << 20,
			policy:      format.PolicyOnce,
			generations: 1,
			trainCalls:  1,
			windows:     []uint64{1, 1, 1},
			reason:      errs.ErrDictionaryFrozen,
		},
		{
			name:        "empty first dictionary falls back to no dictionary",
			srcSize:     3 << 20,
			policy:      format.PolicyContinuous,
			empty:       map[int]bool{1: true},
			generations: 0,
			trainCalls:  1,
			windows:     []uint64{0, 0, 0},
			reason:      errs.ErrTrainerFailure,
		},
		{
			name:        "source smaller than the training chunk",
			srcSize:     500_000,
			policy:      format.PolicyContinuous,
			generations: 0,
			trainCalls:  0,
			windows:     []uint64{0},
			reason:      errs.ErrNotEnoughData,
		},
	}

	for _, tt := range tests {
		for _, m := range modes {
			t.Run(tt.name+"/"+m.name, func(t *testing.T) {
				src := sensorLog(1, tt.srcSize)
				trainer := &fakeTrainer{empty: tt.empty}

				p, err := New(src, scenarioOptions(trainer, append(m.opts, WithPolicy(tt.policy))...)...)
				require.NoError(t, err)

				rep, err := runWithTimeout(t, context.Background(), p)
				require.NoError(t, err)

				require.Equal(t, tt.generations, rep.Generations)
				require.Len(t, rep.Dictionaries, int(tt.generations))
				require.Equal(t, tt.trainCalls, trainer.Calls())
				require.Equal(t, tt.windows, chunkGenerations(rep.Chunks))
				require.Equal(t, len(tt.windows), rep.Windows)
				require.Equal(t, len(src), rep.Consumed)
				require.Equal(t, len(src), rep.CompressedSize) // no-op codec
				require.Equal(t, StateTerminal, rep.FinalState)
				require.Contains(t, rep.TerminalReason, tt.reason.Error())
				require.Empty(t, rep.Error)
				require.NotEmpty(t, rep.RunID)
				require.Equal(t, tt.policy.String(), rep.Policy)
			})
		}
	}
}

func TestPipeline_WithoutGenerationLag(t *testing.T) {
	src := sensorLog(2, 3<<20)

	p, err := New(src, scenarioOptions(&fakeTrainer{}, WithGenerationLag(false))...)
	require.NoError(t, err)

	rep, err := runWithTimeout(t, context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 2}, chunkGenerations(rep.Chunks))
	require.False(t, rep.GenerationLag)
}

func TestPipeline_ThresholdFactor(t *testing.T) {
	src := sensorLog(3, 3<<20)
	trainer := &fakeTrainer{}

	p, err := New(src, scenarioOptions(trainer, WithThresholdFactor(2))...)
	require.NoError(t, err)

	rep, err := runWithTimeout(t, context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, trainer.Calls())
	require.Equal(t, uint64(1), rep.Generations)
	// The lagged selection never reaches generation 1 before training stops.
	require.Equal(t, []uint64{0, 0, 0}, chunkGenerations(rep.Chunks))
}

// With a no-op codec every window has ratio 1: the adaptive policies reuse
// their generation after warm-up, and a floor of 2 flags every trained window.
func TestPipeline_AdaptivePolicies(t *testing.T) {
	tests := []struct {
		policy      format.PolicyType
		params      AdaptiveParams
		generations uint64
		decisions   []SlotState
		anomalies   int
		reason      error
	}{
		{
			policy:      format.PolicyAdaptive,
			params:      AdaptiveParams{DropThreshold: 0.1},
			generations: 2,
			decisions:   []SlotState{StateEmpty, StateReady, StateTerminal},
			anomalies:   0,
			reason:      errs.ErrSourceExhausted,
		},
		{
			policy:      format.PolicyAdaptive,
			params:      AdaptiveParams{DropThreshold: 0.1, Floor: 2},
			generations: 2,
			decisions:   []SlotState{StateEmpty, StateReady, StateTerminal},
			anomalies:   2,
			reason:      errs.ErrSourceExhausted,
		},
		{
			policy:      format.PolicyAdaptiveFloor,
			params:      AdaptiveParams{DropThreshold: 0.1, Floor: 2},
			generations: 2,
			decisions:   []SlotState{StateEmpty, StateEmpty, StateTerminal},
			anomalies:   2,
			reason:      errs.ErrNotEnoughData,
		},
	}

	for _, tt := range tests {
		for _, m := range modes {
			t.Run(fmt.Sprintf("%s/floor=%v/%s", tt.policy, tt.params.Floor, m.name), func(t *testing.T) {
				src := sensorLog(4, 3<<20)
				opts := scenarioOptions(&fakeTrainer{}, append(m.opts,
					WithPolicy(tt.policy), WithAdaptiveParams(tt.params))...)

				p, err := New(src, opts...)
				require.NoError(t, err)

				rep, err := runWithTimeout(t, context.Background(), p)
				require.NoError(t, err)

				decisions := make([]SlotState, len(rep.Chunks))
				for i, c := range rep.Chunks {
					decisions[i] = c.Decision
				}
				require.Equal(t, []uint64{0, 1, 1}, chunkGenerations(rep.Chunks))
				require.Equal(t, tt.generations, rep.Generations)
				require.Equal(t, tt.decisions, decisions)
				require.Equal(t, tt.anomalies, rep.Anomalies)
				require.Contains(t, rep.TerminalReason, tt.reason.Error())
			})
		}
	}
}

// Small chunks give many windows per run; the ordering guarantees must hold
// for every policy in both modes.
func TestPipeline_Properties(t *testing.T) {
	policies := []struct {
		typ    format.PolicyType
		params AdaptiveParams
	}{
		{format.PolicyContinuous, AdaptiveParams{}},
		{format.PolicyOnce, AdaptiveParams{}},
		{format.PolicyAdaptive, AdaptiveParams{DropThreshold: 0.05, Floor: 2}},
		{format.PolicyAdaptiveFloor, AdaptiveParams{DropThreshold: 0.05, Floor: 2}},
	}

	for _, pol := range policies {
		for _, lag := range []bool{true, false} {
			for _, m := range modes {
				name := fmt.Sprintf("%s/lag=%v/%s", pol.typ, lag, m.name)
				t.Run(name, func(t *testing.T) {
					src := sensorLog(5, 1<<20+12345)

					var (
						mu       sync.Mutex
						progress []ProgressReport
					)
					observer := ObserverFuncs{
						Progress: func(p ProgressReport) {
							mu.Lock()
							progress = append(progress, p)
							mu.Unlock()
						},
					}

					opts := append([]Option{
						WithTrainChunkSize(64 << 10),
						WithCompressChunkSize(96 << 10),
						WithBlockSize(4096),
						WithPolicy(pol.typ),
						WithAdaptiveParams(pol.params),
						WithGenerationLag(lag),
						WithTrainer(train.NewContentTrainer()),
						WithCodec(mustCodec(t, format.CompressionS2)),
						WithObserver(observer),
						WithLogger(discardLogger),
					}, m.opts...)

					p, err := New(src, opts...)
					require.NoError(t, err)

					rep, err := runWithTimeout(t, context.Background(), p)
					require.NoError(t, err)

					// Termination with the whole source consumed.
					require.Equal(t, len(src), rep.Consumed)
					require.True(t, rep.FinalState.IsFinal())

					// Monotonicity.
					require.Len(t, progress, rep.Windows)
					last := 0
					for _, pr := range progress {
						require.GreaterOrEqual(t, pr.TotalConsumed, last)
						require.LessOrEqual(t, pr.TotalConsumed, len(src))
						last = pr.TotalConsumed
					}
					require.Equal(t, len(src), last)

					// No look-ahead: a window never uses an unpublished generation.
					offset := 0
					for _, c := range rep.Chunks {
						require.LessOrEqual(t, c.Generation, c.LatestPublished)
						require.LessOrEqual(t, c.LatestPublished, rep.Generations)
						require.Equal(t, offset, c.Offset)
						offset += c.Size
					}

					// Reuse on terminal: once the slot is Terminal every window keeps the
					// generation of the window during which training stopped.
					var active, frozen *uint64
					for _, c := range rep.Chunks {
						g := c.Generation
						if c.State != StateTerminal {
							require.Nil(t, frozen, "window %d left Terminal", c.Window)
							active = &g
							continue
						}
						if frozen == nil {
							frozen = &g
							if active != nil {
								require.Equal(t, *active, g, "window %d changed generation on Terminal", c.Window)
							}
						}
						require.Equal(t, *frozen, g, "window %d", c.Window)
					}

					// Every published dictionary is reported with its fingerprint.
					for i, d := range rep.Dictionaries {
						require.Equal(t, uint64(i+1), d.Generation)
						require.Equal(t, hash.Fingerprint(d.Dict), d.Fingerprint)
						require.LessOrEqual(t, d.Size, DefaultMaxDictSize)
					}
				})
			}
		}
	}
}

func mustCodec(t *testing.T, ct format.CompressionType, opts ...compress.CodecOption) compress.Codec {
	t.Helper()

	c, err := compress.CreateCodec(ct, opts...)
	require.NoError(t, err)

	return c
}

func TestPipeline_SequentialMatchesConcurrent(t *testing.T) {
	src := sensorLog(6, 900_000)

	run := func(extra ...Option) *Report {
		opts := append([]Option{
			WithTrainChunkSize(64 << 10),
			WithCompressChunkSize(128 << 10),
			WithTrainer(train.NewContentTrainer()),
			WithCodec(mustCodec(t, format.CompressionS2)),
			WithLogger(discardLogger),
		}, extra...)

		p, err := New(src, opts...)
		require.NoError(t, err)
		rep, err := runWithTimeout(t, context.Background(), p)
		require.NoError(t, err)

		return rep
	}

	concurrent := run()
	sequential := run(WithSequential())

	require.True(t, sequential.Sequential)
	require.Equal(t, chunkGenerations(concurrent.Chunks), chunkGenerations(sequential.Chunks))
	require.Equal(t, concurrent.CompressedSize, sequential.CompressedSize)
	require.Equal(t, concurrent.Generations, sequential.Generations)
	require.Equal(t, concurrent.TerminalReason, sequential.TerminalReason)
}

func TestPipeline_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		codec   format.CompressionType
		trainer format.TrainerType
		opts    []compress.CodecOption
	}{
		{"zstd prepared", format.CompressionZstd, format.TrainerZstd, nil},
		{"zstd load", format.CompressionZstd, format.TrainerZstd, []compress.CodecOption{compress.WithDictAPI(compress.DictAPILoad)}},
		{"zstd raw content", format.CompressionZstd, format.TrainerContent, nil},
		{"s2 raw content", format.CompressionS2, format.TrainerContent, nil},
		{"lz4", format.CompressionLZ4, format.TrainerContent, nil},
	}

	src := sensorLog(7, 2<<20)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := mustCodec(t, tt.codec, tt.opts...)
			trainer, err := train.New(tt.trainer)
			require.NoError(t, err)
			sink := NewMemorySink()

			p, err := New(src,
				WithTrainChunkSize(256<<10),
				WithCompressChunkSize(512<<10),
				WithBlockSize(4096),
				WithCodec(codec),
				WithTrainer(trainer),
				WithSink(sink),
				WithBaseline(),
				WithLogger(discardLogger),
			)
			require.NoError(t, err)

			rep, err := runWithTimeout(t, context.Background(), p)
			require.NoError(t, err)
			require.Equal(t, 4, rep.Windows)
			require.Len(t, sink.Windows(), 4)
			require.NoError(t, sink.Verify(codec, src))

			require.Positive(t, rep.BaselineSize)
			for _, c := range rep.Chunks {
				require.Equal(t, 128, c.Blocks)
				require.Positive(t, c.BaselineSize)
				require.Positive(t, c.MatchRatio)
			}
		})
	}
}

func TestPipeline_TrainedDictionaryImprovesRatio(t *testing.T) {
	src := sensorLog(8, 2<<20)

	p, err := New(src,
		WithTrainChunkSize(256<<10),
		WithCompressChunkSize(512<<10),
		WithBlockSize(1024),
		WithCodec(mustCodec(t, format.CompressionS2)),
		WithTrainer(train.NewContentTrainer()),
		WithBaseline(),
		WithLogger(discardLogger),
	)
	require.NoError(t, err)

	rep, err := runWithTimeout(t, context.Background(), p)
	require.NoError(t, err)

	for _, c := range rep.Chunks[1:] {
		require.NotZero(t, c.Generation)
		require.Greater(t, c.MatchRatio, 1.0, "window %d", c.Window)
	}
	require.Greater(t, rep.Ratio(), rep.BaselineRatio())
}

func TestPipeline_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	trainer := train.Func(func(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
		close(started)
		<-ctx.Done()

		return []byte("too late"), nil
	})

	p, err := New(sensorLog(9, 3<<20), scenarioOptions(trainer)...)
	require.NoError(t, err)

	go func() {
		<-started
		cancel()
	}()

	rep, err := runWithTimeout(t, ctx, p)
	require.ErrorIs(t, err, errs.ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	require.Equal(t, StateAborted, rep.FinalState)
	// A dictionary finished after cancellation is never published.
	require.Zero(t, rep.Generations)
	require.Zero(t, rep.Consumed)
	require.NotEmpty(t, rep.Error)
}

func TestPipeline_CancelledBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(sensorLog(10, 1<<20), scenarioOptions(&fakeTrainer{})...)
	require.NoError(t, err)

	_, err = p.Run(ctx)
	require.ErrorIs(t, err, errs.ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
}

type failingSink struct{ after int }

func (s *failingSink) WriteWindow(w WindowOutput) error {
	if w.Window >= s.after {
		return errors.New("disk full")
	}

	return nil
}

func TestPipeline_SinkFailureAborts(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			src := sensorLog(11, 3<<20)

			p, err := New(src, scenarioOptions(&fakeTrainer{}, append(m.opts, WithSink(&failingSink{after: 1}))...)...)
			require.NoError(t, err)

			rep, err := runWithTimeout(t, context.Background(), p)
			require.ErrorIs(t, err, errs.ErrAborted)
			require.Contains(t, err.Error(), "disk full")
			require.Equal(t, StateAborted, rep.FinalState)
			require.Equal(t, 1, rep.Windows)
			// Partial output is kept: the failing window was consumed before the sink saw it.
			require.Equal(t, 2<<20, rep.Consumed)
		})
	}
}

func TestPipeline_OversizedDictionaryIsTrainerFailure(t *testing.T) {
	trainer := train.Func(func(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
		return make([]byte, maxDictSize+1), nil
	})

	p, err := New(sensorLog(12, 3<<20), scenarioOptions(trainer)...)
	require.NoError(t, err)

	rep, err := runWithTimeout(t, context.Background(), p)
	require.NoError(t, err)
	require.Zero(t, rep.Generations)
	require.Equal(t, []uint64{0, 0, 0}, chunkGenerations(rep.Chunks))
	require.Contains(t, rep.TerminalReason, errs.ErrTrainerFailure.Error())
}

func TestPipeline_RunsOnce(t *testing.T) {
	p, err := New(sensorLog(13, 100_000), scenarioOptions(&fakeTrainer{})...)
	require.NoError(t, err)

	_, err = runWithTimeout(t, context.Background(), p)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNew_InvalidConfig(t *testing.T) {
	src := []byte(strings.Repeat("x", 1000))

	tests := []struct {
		name    string
		src     []byte
		opts    []Option
		wantErr error
	}{
		{"empty source", nil, nil, errs.ErrEmptySource},
		{"zero block", src, []Option{WithBlockSize(0)}, errs.ErrInvalidConfig},
		{"negative train chunk", src, []Option{WithTrainChunkSize(-1)}, errs.ErrInvalidConfig},
		{"zero compress chunk", src, []Option{WithCompressChunkSize(0)}, errs.ErrInvalidConfig},
		{"zero max dict", src, []Option{WithMaxDictSize(0)}, errs.ErrInvalidConfig},
		{"zero threshold factor", src, []Option{WithThresholdFactor(0)}, errs.ErrInvalidConfig},
		{"compress chunk below block", src, []Option{WithBlockSize(8192), WithCompressChunkSize(4096)}, errs.ErrInvalidConfig},
		{"unknown policy", src, []Option{WithPolicy(format.PolicyType(42))}, errs.ErrInvalidConfig},
		{"adaptive floor without floor", src, []Option{WithPolicy(format.PolicyAdaptiveFloor), WithAdaptiveParams(AdaptiveParams{})}, errs.ErrInvalidConfig},
		{"negative adaptive params", src, []Option{WithAdaptiveParams(AdaptiveParams{Floor: -1})}, errs.ErrInvalidConfig},
		{"nil trainer", src, []Option{WithTrainer(nil)}, errs.ErrInvalidConfig},
		{"nil codec", src, []Option{WithCodec(nil)}, errs.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src, tt.opts...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New([]byte("data"))
	require.NoError(t, err)

	cfg := p.Config()
	require.Equal(t, DefaultBlockSize, cfg.BlockSize())
	require.Equal(t, DefaultTrainChunkSize, cfg.TrainChunkSize())
	require.Equal(t, DefaultCompressChunkSize, cfg.CompressChunkSize())
	require.Equal(t, DefaultMaxDictSize, cfg.MaxDictSize())
	require.Equal(t, format.CompressionZstd, cfg.codec.Type())
	require.Equal(t, format.PolicyContinuous, cfg.policy.Type())
	require.True(t, cfg.generationLag)
}

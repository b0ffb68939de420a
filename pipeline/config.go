package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/internal/options"
	"github.com/arloliu/dictstream/train"
)

// Default sizes.
const (
	DefaultBlockSize         = 4 << 10
	DefaultTrainChunkSize    = 1 << 20
	DefaultCompressChunkSize = 5 << 20
	DefaultMaxDictSize       = train.DefaultMaxDictSize
)

// Config holds the settings of one pipeline run. Build it with options.
type Config struct {
	blockSize         int
	trainChunkSize    int
	compressChunkSize int
	maxDictSize       int
	thresholdFactor   int
	sampleSeed        uint32

	policyType format.PolicyType
	adaptive   AdaptiveParams
	policy     RetrainPolicy // overrides policyType when set

	generationLag bool
	sequential    bool
	baseline      bool

	trainer   train.Trainer
	codec     compress.Codec
	observers []Observer
	sink      Sink
	logger    *slog.Logger
}

func defaultConfig() *Config {
	return &Config{
		blockSize:         DefaultBlockSize,
		trainChunkSize:    DefaultTrainChunkSize,
		compressChunkSize: DefaultCompressChunkSize,
		maxDictSize:       DefaultMaxDictSize,
		thresholdFactor:   1,
		sampleSeed:        DefaultSampleSeed,
		policyType:        format.PolicyContinuous,
		adaptive:          AdaptiveParams{DropThreshold: DefaultDropThreshold, Floor: DefaultFloor},
		generationLag:     true,
	}
}

// BlockSize returns the block size used for sampling and compression.
func (c *Config) BlockSize() int { return c.blockSize }

// TrainChunkSize returns the number of bytes sampled per training step.
func (c *Config) TrainChunkSize() int { return c.trainChunkSize }

// CompressChunkSize returns the size of a compression window.
func (c *Config) CompressChunkSize() int { return c.compressChunkSize }

// MaxDictSize returns the dictionary size limit.
func (c *Config) MaxDictSize() int { return c.maxDictSize }

// Codec returns the block codec. It is nil until the pipeline is created.
func (c *Config) Codec() compress.Codec { return c.codec }

// Policy returns the retrain policy instance. It is nil until the pipeline is created.
func (c *Config) Policy() RetrainPolicy { return c.policy }

// Option represents a functional option for configuring a pipeline.
type Option = options.Option[*Config]

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", errs.ErrInvalidConfig, name, v)
	}

	return nil
}

// WithBlockSize sets the block size used both for training samples and compression blocks.
func WithBlockSize(n int) Option {
	return options.New(func(c *Config) error {
		if err := positive("block size", n); err != nil {
			return err
		}
		c.blockSize = n

		return nil
	})
}

// WithTrainChunkSize sets how many bytes are sampled for each training step.
func WithTrainChunkSize(n int) Option {
	return options.New(func(c *Config) error {
		if err := positive("train chunk size", n); err != nil {
			return err
		}
		c.trainChunkSize = n

		return nil
	})
}

// WithCompressChunkSize sets the compression window size, which is also the
// lookahead available to the sampler.
func WithCompressChunkSize(n int) Option {
	return options.New(func(c *Config) error {
		if err := positive("compress chunk size", n); err != nil {
			return err
		}
		c.compressChunkSize = n

		return nil
	})
}

// WithMaxDictSize sets the upper bound for trained dictionaries.
func WithMaxDictSize(n int) Option {
	return options.New(func(c *Config) error {
		if err := positive("max dictionary size", n); err != nil {
			return err
		}
		c.maxDictSize = n

		return nil
	})
}

// WithThresholdFactor stops training once the remaining source is at most
// factor × train chunk size. The default is 1.
func WithThresholdFactor(factor int) Option {
	return options.New(func(c *Config) error {
		if err := positive("threshold factor", factor); err != nil {
			return err
		}
		c.thresholdFactor = factor

		return nil
	})
}

// WithSampleSeed overrides the sample position generator seed.
func WithSampleSeed(seed uint32) Option {
	return options.NoError(func(c *Config) {
		c.sampleSeed = seed
	})
}

// WithPolicy selects a built-in retrain policy.
func WithPolicy(t format.PolicyType) Option {
	return options.New(func(c *Config) error {
		switch t {
		case format.PolicyContinuous, format.PolicyOnce, format.PolicyAdaptive, format.PolicyAdaptiveFloor:
			c.policyType = t
			return nil
		default:
			return fmt.Errorf("%w: retrain policy %s", errs.ErrInvalidConfig, t)
		}
	})
}

// WithAdaptiveParams sets the drop threshold and floor of the adaptive policies.
func WithAdaptiveParams(p AdaptiveParams) Option {
	return options.New(func(c *Config) error {
		if p.DropThreshold < 0 || p.Floor < 0 {
			return fmt.Errorf("%w: adaptive drop threshold %v and floor %v must not be negative",
				errs.ErrInvalidConfig, p.DropThreshold, p.Floor)
		}
		c.adaptive = p

		return nil
	})
}

// WithRetrainPolicy installs a custom retrain policy instance, overriding WithPolicy.
func WithRetrainPolicy(p RetrainPolicy) Option {
	return options.NoError(func(c *Config) {
		c.policy = p
	})
}

// WithGenerationLag selects whether windows are compressed with the previous
// generation (true, the default) or the most recent one.
func WithGenerationLag(lag bool) Option {
	return options.NoError(func(c *Config) {
		c.generationLag = lag
	})
}

// WithSequential runs training and compression alternately on the calling goroutine.
func WithSequential() Option {
	return options.NoError(func(c *Config) {
		c.sequential = true
	})
}

// WithBaseline also compresses every window without a dictionary to measure the
// dictionary gain (ChunkMetrics.MatchRatio).
func WithBaseline() Option {
	return options.NoError(func(c *Config) {
		c.baseline = true
	})
}

// WithTrainer sets the dictionary trainer. The default is a zstd trainer.
func WithTrainer(t train.Trainer) Option {
	return options.New(func(c *Config) error {
		if t == nil {
			return fmt.Errorf("%w: nil trainer", errs.ErrInvalidConfig)
		}
		c.trainer = t

		return nil
	})
}

// WithCodec sets the block codec. The default is zstd at level 3.
func WithCodec(codec compress.Codec) Option {
	return options.New(func(c *Config) error {
		if codec == nil {
			return fmt.Errorf("%w: nil codec", errs.ErrInvalidConfig)
		}
		c.codec = codec

		return nil
	})
}

// WithObserver adds an event observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return options.NoError(func(c *Config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	})
}

// WithSink sets the receiver of compressed windows.
func WithSink(s Sink) Option {
	return options.NoError(func(c *Config) {
		c.sink = s
	})
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(c *Config) {
		c.logger = l
	})
}

// finish fills defaults that require construction and checks cross-field constraints.
func (c *Config) finish() error {
	if c.compressChunkSize < c.blockSize {
		return fmt.Errorf("%w: compress chunk size %d smaller than block size %d",
			errs.ErrInvalidConfig, c.compressChunkSize, c.blockSize)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.codec == nil {
		codec, err := compress.NewZstdCodec()
		if err != nil {
			return err
		}
		c.codec = codec
	}
	if c.trainer == nil {
		t, err := train.NewZstdTrainer()
		if err != nil {
			return err
		}
		c.trainer = t
	}
	if c.policy == nil {
		p, err := NewPolicy(c.policyType, c.thresholdFactor, c.adaptive)
		if err != nil {
			return err
		}
		c.policy = p
	}

	return nil
}

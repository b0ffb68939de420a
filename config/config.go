// Package config loads dictstream run settings from YAML files and turns them
// into pipeline options.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/pipeline"
	"github.com/arloliu/dictstream/train"
)

// Config represents a complete dictstream run configuration
type Config struct {
	Input    string         `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Codec    CodecConfig    `yaml:"codec"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Policy   PolicyConfig   `yaml:"policy"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// PipelineConfig contains window and block sizes. Sizes accept suffixes (4KB, 1MB).
type PipelineConfig struct {
	BlockSize         datasize.ByteSize `yaml:"block_size"`
	TrainChunkSize    datasize.ByteSize `yaml:"train_chunk_size"`
	CompressChunkSize datasize.ByteSize `yaml:"compress_chunk_size"`
	MaxDictSize       datasize.ByteSize `yaml:"max_dict_size"`
	GenerationLag     *bool             `yaml:"generation_lag,omitempty"` // default: true
	Sequential        bool              `yaml:"sequential"`
	Baseline          bool              `yaml:"baseline"` // also compress without dictionary
	SampleSeed        *uint32           `yaml:"sample_seed,omitempty"`
}

// CodecConfig contains block codec settings
type CodecConfig struct {
	Type    string `yaml:"type"`     // none, zstd, s2, lz4
	Level   int    `yaml:"level"`    // 1-22
	DictAPI string `yaml:"dict_api"` // prepared, load
}

// TrainerConfig contains dictionary trainer settings
type TrainerConfig struct {
	Type  string `yaml:"type"`  // zstd, content
	Level int    `yaml:"level"` // level the zstd dictionary is tuned for (pure-Go builds only)
}

// PolicyConfig contains retrain policy settings
type PolicyConfig struct {
	Type            string   `yaml:"type"`             // continuous, once, adaptive, adaptive-floor
	ThresholdFactor int      `yaml:"threshold_factor"` // stop training at factor × train chunk remaining
	DropThreshold   *float64 `yaml:"drop_threshold,omitempty"`
	Floor           *float64 `yaml:"floor,omitempty"`
}

// OutputConfig contains report and artifact destinations. Empty paths disable the output.
type OutputConfig struct {
	Report       string `yaml:"report"`
	ReportFormat string `yaml:"report_format"` // json, msgpack, csv
	RatioFile    string `yaml:"ratio_file"`
	DictDir      string `yaml:"dict_dir"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	lag := true
	drop := pipeline.DefaultDropThreshold
	floor := pipeline.DefaultFloor

	return &Config{
		Pipeline: PipelineConfig{
			BlockSize:         datasize.ByteSize(pipeline.DefaultBlockSize),
			TrainChunkSize:    datasize.ByteSize(pipeline.DefaultTrainChunkSize),
			CompressChunkSize: datasize.ByteSize(pipeline.DefaultCompressChunkSize),
			MaxDictSize:       datasize.ByteSize(pipeline.DefaultMaxDictSize),
			GenerationLag:     &lag,
		},
		Codec:   CodecConfig{Type: "zstd", Level: compress.DefaultLevel, DictAPI: "prepared"},
		Trainer: TrainerConfig{Type: "zstd", Level: compress.DefaultLevel},
		Policy: PolicyConfig{
			Type:            "continuous",
			ThresholdFactor: 1,
			DropThreshold:   &drop,
			Floor:           &floor,
		},
		Output: OutputConfig{ReportFormat: "json"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses a YAML configuration file.
//
// Settings missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// PipelineOptions builds the pipeline options described by the configuration.
//
// The caller adds a logger, observers and a sink.
func (c *Config) PipelineOptions() ([]pipeline.Option, error) {
	codec, err := c.Codec.New()
	if err != nil {
		return nil, err
	}
	trainer, err := c.Trainer.New()
	if err != nil {
		return nil, err
	}
	policy, err := format.ParsePolicyType(c.Policy.Type)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithBlockSize(int(c.Pipeline.BlockSize.Bytes())),
		pipeline.WithTrainChunkSize(int(c.Pipeline.TrainChunkSize.Bytes())),
		pipeline.WithCompressChunkSize(int(c.Pipeline.CompressChunkSize.Bytes())),
		pipeline.WithMaxDictSize(int(c.Pipeline.MaxDictSize.Bytes())),
		pipeline.WithThresholdFactor(c.Policy.ThresholdFactor),
		pipeline.WithPolicy(policy),
		pipeline.WithAdaptiveParams(c.Policy.AdaptiveParams()),
		pipeline.WithGenerationLag(c.Pipeline.GenerationLag == nil || *c.Pipeline.GenerationLag),
		pipeline.WithCodec(codec),
		pipeline.WithTrainer(trainer),
	}
	if c.Pipeline.Sequential {
		opts = append(opts, pipeline.WithSequential())
	}
	if c.Pipeline.Baseline {
		opts = append(opts, pipeline.WithBaseline())
	}
	if c.Pipeline.SampleSeed != nil {
		opts = append(opts, pipeline.WithSampleSeed(*c.Pipeline.SampleSeed))
	}

	return opts, nil
}

// New creates the configured codec.
func (c CodecConfig) New() (compress.Codec, error) {
	ct, err := format.ParseCompressionType(c.Type)
	if err != nil {
		return nil, err
	}
	api, err := compress.ParseDictAPI(c.DictAPI)
	if err != nil {
		return nil, err
	}

	return compress.CreateCodec(ct, compress.WithLevel(c.Level), compress.WithDictAPI(api))
}

// New creates the configured trainer.
func (c TrainerConfig) New() (train.Trainer, error) {
	tt, err := format.ParseTrainerType(c.Type)
	if err != nil {
		return nil, err
	}

	return train.New(tt, train.WithLevel(c.Level))
}

// AdaptiveParams returns the adaptive policy parameters.
func (c PolicyConfig) AdaptiveParams() pipeline.AdaptiveParams {
	var p pipeline.AdaptiveParams
	if c.DropThreshold != nil {
		p.DropThreshold = *c.DropThreshold
	}
	if c.Floor != nil {
		p.Floor = *c.Floor
	}

	return p
}

// NewLogger creates a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format must be 'text' or 'json', got '%s'", c.Format)
	}
}

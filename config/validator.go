package config

import (
	"fmt"

	"github.com/arloliu/dictstream/compress"
	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
)

// Validate checks if the configuration is valid and fills defaults for unset values
func Validate(cfg *Config) error {
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return err
	}

	// Codec and trainer
	if cfg.Codec.Type == "" {
		cfg.Codec.Type = "zstd"
	}
	if _, err := format.ParseCompressionType(cfg.Codec.Type); err != nil {
		return fmt.Errorf("codec.type: %w", err)
	}
	if _, err := compress.ParseDictAPI(cfg.Codec.DictAPI); err != nil {
		return fmt.Errorf("codec.dict_api: %w", err)
	}
	if cfg.Codec.Level == 0 {
		cfg.Codec.Level = compress.DefaultLevel
	}
	if cfg.Codec.Level < 1 || cfg.Codec.Level > 22 {
		return fmt.Errorf("%w: codec.level must be in [1, 22], got %d", errs.ErrInvalidConfig, cfg.Codec.Level)
	}

	if cfg.Trainer.Type == "" {
		cfg.Trainer.Type = "zstd"
	}
	if _, err := format.ParseTrainerType(cfg.Trainer.Type); err != nil {
		return fmt.Errorf("trainer.type: %w", err)
	}
	if cfg.Trainer.Level == 0 {
		cfg.Trainer.Level = cfg.Codec.Level
	}
	if cfg.Trainer.Level < 1 || cfg.Trainer.Level > 22 {
		return fmt.Errorf("%w: trainer.level must be in [1, 22], got %d", errs.ErrInvalidConfig, cfg.Trainer.Level)
	}

	if err := validatePolicy(&cfg.Policy); err != nil {
		return err
	}

	// Outputs
	switch cfg.Output.ReportFormat {
	case "":
		cfg.Output.ReportFormat = "json"
	case "json", "msgpack", "csv":
	default:
		return fmt.Errorf("%w: output.report_format must be json, msgpack or csv, got '%s'",
			errs.ErrInvalidConfig, cfg.Output.ReportFormat)
	}

	// Logging
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := cfg.Log.NewLogger(nil); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	return nil
}

func validatePipeline(p *PipelineConfig) error {
	d := Default().Pipeline
	if p.BlockSize == 0 {
		p.BlockSize = d.BlockSize
	}
	if p.TrainChunkSize == 0 {
		p.TrainChunkSize = d.TrainChunkSize
	}
	if p.CompressChunkSize == 0 {
		p.CompressChunkSize = d.CompressChunkSize
	}
	if p.MaxDictSize == 0 {
		p.MaxDictSize = d.MaxDictSize
	}

	const maxSize = 1 << 31
	for _, s := range []struct {
		name string
		v    uint64
	}{
		{"pipeline.block_size", p.BlockSize.Bytes()},
		{"pipeline.train_chunk_size", p.TrainChunkSize.Bytes()},
		{"pipeline.compress_chunk_size", p.CompressChunkSize.Bytes()},
		{"pipeline.max_dict_size", p.MaxDictSize.Bytes()},
	} {
		if s.v >= maxSize {
			return fmt.Errorf("%w: %s must be below 2GB, got %d", errs.ErrInvalidConfig, s.name, s.v)
		}
	}

	if p.CompressChunkSize < p.BlockSize {
		return fmt.Errorf("%w: pipeline.compress_chunk_size (%s) must be at least pipeline.block_size (%s)",
			errs.ErrInvalidConfig, p.CompressChunkSize.HR(), p.BlockSize.HR())
	}

	return nil
}

func validatePolicy(p *PolicyConfig) error {
	if p.Type == "" {
		p.Type = "continuous"
	}
	policy, err := format.ParsePolicyType(p.Type)
	if err != nil {
		return fmt.Errorf("policy.type: %w", err)
	}

	if p.ThresholdFactor == 0 {
		p.ThresholdFactor = 1
	}
	if p.ThresholdFactor < 0 {
		return fmt.Errorf("%w: policy.threshold_factor must be > 0, got %d", errs.ErrInvalidConfig, p.ThresholdFactor)
	}

	params := p.AdaptiveParams()
	if params.DropThreshold < 0 {
		return fmt.Errorf("%w: policy.drop_threshold must not be negative, got %v", errs.ErrInvalidConfig, params.DropThreshold)
	}
	if params.Floor < 0 {
		return fmt.Errorf("%w: policy.floor must not be negative, got %v", errs.ErrInvalidConfig, params.Floor)
	}
	if policy == format.PolicyAdaptiveFloor && params.Floor == 0 {
		return fmt.Errorf("%w: policy.floor is required for adaptive-floor", errs.ErrInvalidConfig)
	}

	return nil
}

package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
	"github.com/arloliu/dictstream/pipeline"
)

const sampleConfig = `
input: /var/log/app.log
pipeline:
  block_size: 4KB
  train_chunk_size: 256KB
  compress_chunk_size: 1MB
  max_dict_size: 64KB
  generation_lag: false
  sequential: true
  baseline: true
  sample_seed: 42
codec:
  type: s2
trainer:
  type: content
policy:
  type: adaptive-floor
  threshold_factor: 2
  drop_threshold: 0.25
  floor: 1.5
output:
  report: report.msgpack
  report_format: msgpack
  ratio_file: ratios.txt
  dict_dir: dicts
log:
  level: debug
  format: json
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/log/app.log", cfg.Input)
	require.Equal(t, 4*datasize.KB, cfg.Pipeline.BlockSize)
	require.Equal(t, 256*datasize.KB, cfg.Pipeline.TrainChunkSize)
	require.Equal(t, datasize.MB, cfg.Pipeline.CompressChunkSize)
	require.Equal(t, 64*datasize.KB, cfg.Pipeline.MaxDictSize)
	require.NotNil(t, cfg.Pipeline.GenerationLag)
	require.False(t, *cfg.Pipeline.GenerationLag)
	require.True(t, cfg.Pipeline.Sequential)
	require.True(t, cfg.Pipeline.Baseline)
	require.NotNil(t, cfg.Pipeline.SampleSeed)
	require.Equal(t, uint32(42), *cfg.Pipeline.SampleSeed)

	require.Equal(t, "s2", cfg.Codec.Type)
	require.Equal(t, 3, cfg.Codec.Level) // default kept
	require.Equal(t, "content", cfg.Trainer.Type)

	require.Equal(t, "adaptive-floor", cfg.Policy.Type)
	require.Equal(t, 2, cfg.Policy.ThresholdFactor)
	params := cfg.Policy.AdaptiveParams()
	require.InDelta(t, 0.25, params.DropThreshold, 1e-9)
	require.InDelta(t, 1.5, params.Floor, 1e-9)

	require.Equal(t, "msgpack", cfg.Output.ReportFormat)
	require.Equal(t, "dicts", cfg.Output.DictDir)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("input: data.bin\n"))
	require.NoError(t, err)

	want := Default()
	want.Input = "data.bin"
	require.Equal(t, want, cfg)
}

func TestParse_FillsZeroValues(t *testing.T) {
	cfg, err := Parse([]byte(`
pipeline:
  block_size: 0B
codec:
  level: 0
  type: ""
policy:
  threshold_factor: 0
`))
	require.NoError(t, err)
	require.Equal(t, datasize.ByteSize(pipeline.DefaultBlockSize), cfg.Pipeline.BlockSize)
	require.Equal(t, 3, cfg.Codec.Level)
	require.Equal(t, "zstd", cfg.Codec.Type)
	require.Equal(t, 1, cfg.Policy.ThresholdFactor)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		target error
	}{
		{"unknown codec", "codec:\n  type: brotli\n", errs.ErrUnsupportedCodec},
		{"unknown trainer", "trainer:\n  type: bpe\n", errs.ErrUnsupportedCodec},
		{"unknown policy", "policy:\n  type: sometimes\n", errs.ErrInvalidConfig},
		{"level too high", "codec:\n  level: 30\n", errs.ErrInvalidConfig},
		{"trainer level", "trainer:\n  level: -1\n", errs.ErrInvalidConfig},
		{"unknown dict api", "codec:\n  dict_api: mmap\n", errs.ErrInvalidConfig},
		{"window below block", "pipeline:\n  block_size: 64KB\n  compress_chunk_size: 32KB\n", errs.ErrInvalidConfig},
		{"huge window", "pipeline:\n  compress_chunk_size: 4GB\n", errs.ErrInvalidConfig},
		{"negative factor", "policy:\n  threshold_factor: -2\n", errs.ErrInvalidConfig},
		{"negative drop", "policy:\n  drop_threshold: -0.5\n", errs.ErrInvalidConfig},
		{"floor-less adaptive-floor", "policy:\n  type: adaptive-floor\n  floor: 0\n", errs.ErrInvalidConfig},
		{"report format", "output:\n  report_format: xml\n", errs.ErrInvalidConfig},
		{"log level", "log:\n  level: verbose\n", errs.ErrInvalidConfig},
		{"log format", "log:\n  format: logfmt\n", errs.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, tt.target)
			require.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("pipeline: [unterminated"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse config")

	_, err = Parse([]byte("pipeline:\n  block_size: lots\n"))
	require.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
pipeline:
  train_chunk_size: 64KB
  compress_chunk_size: 128KB
  sequential: true
  baseline: true
codec:
  type: s2
trainer:
  type: content
policy:
  type: once
`))
	require.NoError(t, err)

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)

	logger, err := cfg.Log.NewLogger(&bytes.Buffer{})
	require.NoError(t, err)

	src := []byte(strings.Repeat("ts=1700000000 host=web-01 level=info msg=\"request served\" status=200\n", 8000))
	p, err := pipeline.New(src, append(opts, pipeline.WithLogger(logger))...)
	require.NoError(t, err)

	pc := p.Config()
	require.Equal(t, 64<<10, pc.TrainChunkSize())
	require.Equal(t, 128<<10, pc.CompressChunkSize())
	require.Equal(t, format.CompressionS2, pc.Codec().Type())
	require.Equal(t, format.PolicyOnce, pc.Policy().Type())

	rep, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(src), rep.Consumed)
	require.True(t, rep.Sequential)
	require.Positive(t, rep.BaselineSize)
}

func TestCodecConfig_New(t *testing.T) {
	codec, err := CodecConfig{Type: "lz4", Level: 3}.New()
	require.NoError(t, err)
	require.Equal(t, format.CompressionLZ4, codec.Type())

	_, err = CodecConfig{Type: "zstd", Level: 3, DictAPI: "mmap"}.New()
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "window", 3)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"window":3`)

	buf.Reset()
	logger, err = LogConfig{Level: "DEBUG"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("text handler")
	require.Contains(t, buf.String(), "msg=\"text handler\"")
}

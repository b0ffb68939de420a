// Command dictstream compresses a file while training compression dictionaries
// on the data ahead of the compression cursor, and reports the achieved ratio.
//
// Usage:
//
//	dictstream [flags] <input>
//
// Settings come from an optional YAML file (-config); flags given on the
// command line override the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/c2h5oh/datasize"

	"github.com/arloliu/dictstream/config"
	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/pipeline"
	"github.com/arloliu/dictstream/report"
)

type cliFlags struct {
	configPath string

	blockSize         datasize.ByteSize
	trainChunkSize    datasize.ByteSize
	compressChunkSize datasize.ByteSize
	maxDictSize       datasize.ByteSize

	baseline   bool
	dictAPI    string
	codec      string
	level      int
	trainer    string
	policy     string
	threshold  int
	drop       float64
	floor      float64
	sequential bool
	noLag      bool
	verify     bool

	report       string
	reportFormat string
	ratioFile    string
	saveDict     string

	debug     bool
	logFormat string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var f cliFlags
	fs := newFlagSet(&f)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlags(fs, cfg, &f)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}
	if cfg.Input == "" {
		fs.Usage()
		return errors.New("no input file given")
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	src, err := os.ReadFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if len(src) == 0 {
		return fmt.Errorf("%s: %w", cfg.Input, errs.ErrEmptySource)
	}

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return err
	}
	opts = append(opts, pipeline.WithLogger(logger))

	var sink *pipeline.MemorySink
	if f.verify {
		sink = pipeline.NewMemorySink()
		opts = append(opts, pipeline.WithSink(sink))
	}

	p, err := pipeline.New(src, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := p.Run(ctx)
	if rep != nil {
		if err := writeOutputs(cfg, rep); err != nil {
			return err
		}
		printSummary(rep)
	}
	if runErr != nil {
		return runErr
	}

	if sink != nil {
		if err := sink.Verify(p.Config().Codec(), src); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Println("verify:      ok")
	}

	return nil
}

// newFlagSet registers the command line flags, bound to f.
func newFlagSet(f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("dictstream", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to YAML configuration file")
	fs.TextVar(&f.blockSize, "B", datasize.ByteSize(pipeline.DefaultBlockSize), "Block size (e.g. 4KB)")
	fs.TextVar(&f.trainChunkSize, "T", datasize.ByteSize(pipeline.DefaultTrainChunkSize), "Training chunk size")
	fs.TextVar(&f.compressChunkSize, "C", datasize.ByteSize(pipeline.DefaultCompressChunkSize), "Compression window size")
	fs.TextVar(&f.maxDictSize, "M", datasize.ByteSize(pipeline.DefaultMaxDictSize), "Maximum dictionary size")
	fs.BoolVar(&f.baseline, "R", false, "Also compress every window without a dictionary")
	fs.StringVar(&f.dictAPI, "A", "prepared", "Dictionary API: prepared or load")
	fs.StringVar(&f.codec, "codec", "zstd", "Block codec: zstd, s2, lz4, none")
	fs.IntVar(&f.level, "level", 3, "Compression level (1-22); also tunes dictionary training in pure-Go builds")
	fs.StringVar(&f.trainer, "trainer", "zstd", "Dictionary trainer: zstd or content")
	fs.StringVar(&f.policy, "policy", "continuous", "Retrain policy: continuous, once, adaptive, adaptive-floor")
	fs.IntVar(&f.threshold, "threshold", 1, "Stop training when remaining data is below threshold x training chunk")
	fs.Float64Var(&f.drop, "drop", pipeline.DefaultDropThreshold, "Adaptive policies: relative signal drop that triggers retraining")
	fs.Float64Var(&f.floor, "floor", pipeline.DefaultFloor, "Adaptive policies: signal floor marking anomalous windows")
	fs.BoolVar(&f.sequential, "sequential", false, "Run training and compression on one goroutine")
	fs.BoolVar(&f.noLag, "no-lag", false, "Compress with the newest dictionary instead of the previous one")
	fs.BoolVar(&f.verify, "verify", false, "Decompress the output and compare it with the input")
	fs.StringVar(&f.report, "report", "", "Write the run report to this file")
	fs.StringVar(&f.reportFormat, "report-format", "json", "Report format: json, msgpack, csv")
	fs.StringVar(&f.ratioFile, "ratio-file", "", "Append the compression ratio to this file")
	fs.StringVar(&f.saveDict, "save-dict", "", "Save every trained dictionary to this directory")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <input>\n\nFlags:\n", fs.Name())
		fs.PrintDefaults()
	}

	return fs
}

// applyFlags copies the flags set on the command line into cfg.
func applyFlags(fs *flag.FlagSet, cfg *config.Config, f *cliFlags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "B":
			cfg.Pipeline.BlockSize = f.blockSize
		case "T":
			cfg.Pipeline.TrainChunkSize = f.trainChunkSize
		case "C":
			cfg.Pipeline.CompressChunkSize = f.compressChunkSize
		case "M":
			cfg.Pipeline.MaxDictSize = f.maxDictSize
		case "R":
			cfg.Pipeline.Baseline = f.baseline
		case "A":
			cfg.Codec.DictAPI = f.dictAPI
		case "codec":
			cfg.Codec.Type = f.codec
		case "level":
			cfg.Codec.Level = f.level
			cfg.Trainer.Level = f.level
		case "trainer":
			cfg.Trainer.Type = f.trainer
		case "policy":
			cfg.Policy.Type = f.policy
		case "threshold":
			cfg.Policy.ThresholdFactor = f.threshold
		case "drop":
			cfg.Policy.DropThreshold = &f.drop
		case "floor":
			cfg.Policy.Floor = &f.floor
		case "sequential":
			cfg.Pipeline.Sequential = f.sequential
		case "no-lag":
			lag := !f.noLag
			cfg.Pipeline.GenerationLag = &lag
		case "report":
			cfg.Output.Report = f.report
		case "report-format":
			cfg.Output.ReportFormat = f.reportFormat
		case "ratio-file":
			cfg.Output.RatioFile = f.ratioFile
		case "save-dict":
			cfg.Output.DictDir = f.saveDict
		case "debug":
			if f.debug {
				cfg.Log.Level = "debug"
			}
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
}

func writeOutputs(cfg *config.Config, rep *pipeline.Report) error {
	if cfg.Output.Report != "" {
		if err := report.WriteFile(cfg.Output.Report, cfg.Output.ReportFormat, rep); err != nil {
			return err
		}
	}
	if cfg.Output.RatioFile != "" {
		if err := report.AppendRatio(cfg.Output.RatioFile, rep.Ratio()); err != nil {
			return err
		}
	}
	if cfg.Output.DictDir != "" {
		if _, err := report.SaveDictionaries(cfg.Output.DictDir, rep.Dictionaries); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(rep *pipeline.Report) {
	fmt.Printf("run:         %s\n", rep.RunID)
	fmt.Printf("codec:       %s (policy %s)\n", rep.Codec, rep.Policy)
	fmt.Printf("consumed:    %s of %s\n",
		datasize.ByteSize(rep.Consumed).HR(), datasize.ByteSize(rep.SourceSize).HR())
	fmt.Printf("compressed:  %s\n", datasize.ByteSize(rep.CompressedSize).HR())
	fmt.Printf("ratio:       %f\n", rep.Ratio())
	if rep.BaselineSize > 0 {
		fmt.Printf("baseline:    %f\n", rep.BaselineRatio())
	}
	fmt.Printf("windows:     %d (anomalies %d)\n", rep.Windows, rep.Anomalies)
	fmt.Printf("generations: %d %v\n", rep.Generations, rep.GenerationsUsed())
	fmt.Printf("final state: %s", rep.FinalState)
	if rep.TerminalReason != "" {
		fmt.Printf(" (%s)", rep.TerminalReason)
	}
	fmt.Printf("\nelapsed:     %s\n", rep.Elapsed)
}

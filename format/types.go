package format

import (
	"fmt"
	"strings"

	"github.com/arloliu/dictstream/errs"
)

type (
	CompressionType uint8
	TrainerType     uint8
	PolicyType      uint8
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

	TrainerZstd    TrainerType = 0x1 // TrainerZstd trains zstd dictionaries (COVER/fastCover family).
	TrainerContent TrainerType = 0x2 // TrainerContent builds raw-content dictionaries from samples.

	PolicyContinuous    PolicyType = 0x1 // PolicyContinuous retrains after every window.
	PolicyOnce          PolicyType = 0x2 // PolicyOnce trains a single dictionary and reuses it.
	PolicyAdaptive      PolicyType = 0x3 // PolicyAdaptive retrains when the ratio signal drops.
	PolicyAdaptiveFloor PolicyType = 0x4 // PolicyAdaptiveFloor also retrains below the ratio floor.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// SupportsDictionary reports whether the compression type can use a trained dictionary.
func (c CompressionType) SupportsDictionary() bool {
	return c == CompressionZstd || c == CompressionS2
}

// ParseCompressionType parses a case-insensitive compression name.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "noop":
		return CompressionNone, nil
	case "zstd", "zstandard":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: compression %q", errs.ErrUnsupportedCodec, s)
	}
}

func (t TrainerType) String() string {
	switch t {
	case TrainerZstd:
		return "Zstd"
	case TrainerContent:
		return "Content"
	default:
		return "Unknown"
	}
}

// ParseTrainerType parses a case-insensitive trainer name.
func ParseTrainerType(s string) (TrainerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zstd", "cover":
		return TrainerZstd, nil
	case "content", "raw":
		return TrainerContent, nil
	default:
		return 0, fmt.Errorf("%w: trainer %q", errs.ErrUnsupportedCodec, s)
	}
}

func (p PolicyType) String() string {
	switch p {
	case PolicyContinuous:
		return "continuous"
	case PolicyOnce:
		return "once"
	case PolicyAdaptive:
		return "adaptive"
	case PolicyAdaptiveFloor:
		return "adaptive-floor"
	default:
		return "unknown"
	}
}

// ParsePolicyType parses a retrain policy name such as "continuous" or "adaptive-floor".
func ParsePolicyType(s string) (PolicyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous", "":
		return PolicyContinuous, nil
	case "once":
		return PolicyOnce, nil
	case "adaptive":
		return PolicyAdaptive, nil
	case "adaptive-floor", "adaptive_floor":
		return PolicyAdaptiveFloor, nil
	default:
		return 0, fmt.Errorf("%w: retrain policy %q", errs.ErrInvalidConfig, s)
	}
}

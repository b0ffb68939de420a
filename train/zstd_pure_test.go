//go:build !cgo

package train

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZstdTrainer_SingleSample(t *testing.T) {
	trainer, err := NewZstdTrainer()
	require.NoError(t, err)

	tests := []struct {
		name  string
		sizes []int
	}{
		{"one sample", []int{4096}},
		{"one non-empty sample", []int{0, 4096, 0}},
	}

	samples := logLines(21, 4096)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				d, err := trainer.Train(samples, tt.sizes, DefaultMaxDictSize)
				require.NoError(t, err)
				require.Empty(t, d)
			})
		})
	}
}

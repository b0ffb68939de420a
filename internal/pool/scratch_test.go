package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBytes(t *testing.T) {
	t.Run("returns slice with requested size", func(t *testing.T) {
		buf, release := GetBytes(4096)
		defer release()

		require.Len(t, buf, 4096)
		require.GreaterOrEqual(t, cap(buf), 4096)
	})

	t.Run("grows when pooled capacity is insufficient", func(t *testing.T) {
		_, release := GetBytes(16)
		release()

		buf, release := GetBytes(1 << 20)
		defer release()
		require.Len(t, buf, 1<<20)
	})

	t.Run("zero size", func(t *testing.T) {
		buf, release := GetBytes(0)
		defer release()
		require.Empty(t, buf)
	})

	t.Run("oversized buffers are not retained", func(t *testing.T) {
		buf, release := GetBytes(MaxRetainedBytes + 1)
		require.Len(t, buf, MaxRetainedBytes+1)
		require.NotPanics(t, release)
	})
}

func TestGetInts(t *testing.T) {
	s, release := GetInts(8)
	for i := range s {
		s[i] = i + 1
	}
	release()

	s, release = GetInts(4)
	defer release()
	require.Len(t, s, 4)
	require.Equal(t, []int{0, 0, 0, 0}, s)
}

func BenchmarkGetBytes(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf, release := GetBytes(1 << 20)
		buf[0] = 1
		release()
	}
}

package pool

import "sync"

// MaxRetainedBytes bounds the capacity of byte buffers returned to the pool.
// Larger buffers (e.g. oversized compress windows) are dropped and left to the GC.
const MaxRetainedBytes = 64 << 20

// Scratch pools for window copies, training sample buffers and sample bookkeeping.
var (
	byteSlicePool = sync.Pool{
		New: func() any { return &[]byte{} },
	}
	intSlicePool = sync.Pool{
		New: func() any { return &[]int{} },
	}
)

// GetBytes retrieves a byte slice of exactly size bytes from the pool.
//
// The contents of the returned slice are unspecified; callers are expected to
// overwrite it completely. The returned cleanup function must be called once
// the slice is no longer referenced.
//
// Example:
//
//	window, release := pool.GetBytes(chunkSize)
//	defer release()
//	n := copy(window, src[off:off+chunkSize])
func GetBytes(size int) ([]byte, func()) {
	ptr, _ := byteSlicePool.Get().(*[]byte)
	buf := *ptr

	if cap(buf) < size {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
	}
	*ptr = buf

	return buf, func() {
		if cap(*ptr) > MaxRetainedBytes {
			return
		}
		byteSlicePool.Put(ptr)
	}
}

// GetInts retrieves a zeroed int slice of exactly size elements from the pool.
//
// The returned cleanup function must be called once the slice is no longer referenced.
func GetInts(size int) ([]int, func()) {
	ptr, _ := intSlicePool.Get().(*[]int)
	s := *ptr

	if cap(s) < size {
		s = make([]int, size)
	} else {
		s = s[:size]
		clear(s)
	}
	*ptr = s

	return s, func() { intSlicePool.Put(ptr) }
}

package hash

import "github.com/cespare/xxhash/v2"

// Dictionary IDs below minDictID are reserved for registered dictionaries and
// IDs at or above 1<<31 are reserved by the zstd format.
const (
	minDictID = 1 << 15
	maxDictID = 1<<31 - 1
)

// Fingerprint computes the xxHash64 of a dictionary buffer.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// DictID derives a zstd dictionary ID from the dictionary content.
//
// The result is stable for identical content and always lies in the
// user range [32768, 2^31-1], so it never collides with the "no dictionary" ID 0.
func DictID(data []byte) uint32 {
	span := uint64(maxDictID - minDictID + 1)

	return uint32(minDictID + xxhash.Sum64(data)%span)
}

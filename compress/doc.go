// Package compress provides dictionary-aware block codecs for dictstream.
//
// The pipeline splits every compression window into fixed-size blocks and
// compresses each block with the dictionary generation selected for that
// window. A Session carries the per-window state (prepared dictionary or
// encoder) across the blocks of one window; a Decompressor restores single
// blocks given the same dictionary.
//
// # Architecture
//
//	type Compressor interface {
//	    NewSession(dict []byte) (Session, error)
//	}
//
//	type Session interface {
//	    Compress(block []byte) ([]byte, error)
//	    Close() error
//	}
//
//	type Decompressor interface {
//	    Decompress(dict, data []byte) ([]byte, error)
//	}
//
// # Supported Algorithms
//
// **Zstandard** (format.CompressionZstd)
//
//	codec, _ := compress.NewZstdCodec(compress.WithLevel(3))
//	s, _ := codec.NewSession(dict)
//	defer s.Close()
//	block, _ := s.Compress(data)
//	original, _ := codec.Decompress(dict, block)
//
// Trained dictionaries (magic 0xEC30A437) are loaded as zstd dictionaries; any
// other byte string is used as raw content with an ID derived from its xxHash.
// With cgo the codec uses libzstd via gozstd; otherwise klauspost/compress/zstd.
//
// **S2** (format.CompressionS2)
//
// Uses the last 64 KiB of the dictionary as raw content via s2.MakeDict.
//
// **LZ4** (format.CompressionLZ4) and **None** (format.CompressionNone)
//
// Ignore the dictionary. They are the no-dictionary baselines used to measure
// what a dictionary buys.
//
// # Dictionary loading
//
// WithDictAPI(DictAPIPrepared), the default, digests a dictionary once per
// session. WithDictAPI(DictAPILoad) loads the raw dictionary again for each
// block, which is slower but mirrors per-block dictionary loading.
//
// # Thread Safety
//
// Codecs are safe for concurrent use. Sessions are not; open one per window.
package compress

//go:build cgo

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// NewSession opens a compression session bound to dict.
//
// Prepared sessions build one CDict per window; load sessions build a CDict per block.
// libzstd gives raw-content dictionaries ID 0, so their frames are stamped with
// DictID(dict) to let Decompress detect a wrong dictionary.
func (c *ZstdCodec) NewSession(dict []byte) (Session, error) {
	if len(dict) == 0 {
		return &zstdPlainSession{level: c.level}, nil
	}

	if c.api == DictAPILoad {
		return &zstdLoadSession{level: c.level, dict: dict, dictID: rawDictID(dict)}, nil
	}

	cd, err := gozstd.NewCDictLevel(dict, c.level)
	if err != nil {
		return nil, fmt.Errorf("zstd CDict with %d byte dictionary: %w", len(dict), err)
	}

	return &zstdSession{cd: cd, dictID: rawDictID(dict)}, nil
}

// Decompress decompresses one block compressed with dict.
func (c *ZstdCodec) Decompress(dict, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if len(dict) == 0 {
		decompressed, err := gozstd.Decompress(nil, data)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}

		return decompressed, nil
	}

	if err := checkFrameDict(dict, data); err != nil {
		return nil, err
	}
	if !IsZstdDict(dict) {
		data = stripFrameDictID(data)
	}

	dd, err := gozstd.NewDDict(dict)
	if err != nil {
		return nil, fmt.Errorf("zstd DDict with %d byte dictionary: %w", len(dict), err)
	}
	defer dd.Release()

	decompressed, err := gozstd.DecompressDict(nil, data, dd)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	return decompressed, nil
}

type zstdPlainSession struct {
	level int
}

func (s *zstdPlainSession) Compress(block []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, block, s.level), nil
}

func (s *zstdPlainSession) Close() error {
	return nil
}

type zstdSession struct {
	cd     *gozstd.CDict
	dictID uint32
}

func (s *zstdSession) Compress(block []byte) ([]byte, error) {
	return stampFrameDictID(gozstd.CompressDict(nil, block, s.cd), s.dictID), nil
}

func (s *zstdSession) Close() error {
	if s.cd != nil {
		s.cd.Release()
		s.cd = nil
	}

	return nil
}

// zstdLoadSession loads the dictionary again for every block.
type zstdLoadSession struct {
	level  int
	dict   []byte
	dictID uint32
}

func (s *zstdLoadSession) Compress(block []byte) ([]byte, error) {
	cd, err := gozstd.NewCDictLevel(s.dict, s.level)
	if err != nil {
		return nil, fmt.Errorf("zstd CDict with %d byte dictionary: %w", len(s.dict), err)
	}
	defer cd.Release()

	return stampFrameDictID(gozstd.CompressDict(nil, block, cd), s.dictID), nil
}

func (s *zstdLoadSession) Close() error {
	return nil
}

package train

import "github.com/arloliu/dictstream/internal/options"

// ZstdTrainer trains zstd-format dictionaries.
//
// With cgo enabled it calls libzstd's ZDICT trainer through gozstd.BuildDict;
// otherwise it uses the pure-Go builder from klauspost/compress/dict.
// The resulting dictionaries start with the zstd dictionary magic and carry
// their own dictionary ID.
//
// The level tunes the entropy tables of the pure-Go builder. libzstd's
// ZDICT_trainFromBuffer takes no level, so cgo builds record it but train the
// same dictionary for every level.
type ZstdTrainer struct {
	level int
}

var _ Trainer = (*ZstdTrainer)(nil)

// NewZstdTrainer creates a zstd dictionary trainer.
//
// Example:
//
//	t, _ := train.NewZstdTrainer(train.WithLevel(3))
//	dict, err := t.Train(samples, sizes, train.DefaultMaxDictSize)
func NewZstdTrainer(opts ...TrainerOption) (*ZstdTrainer, error) {
	cfg := trainerConfig{level: 3}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &ZstdTrainer{level: cfg.level}, nil
}

// Level returns the compression level the dictionary is tuned for.
//
// It only affects training in builds without cgo.
func (t *ZstdTrainer) Level() int {
	return t.level
}

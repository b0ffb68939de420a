package train

// ContentTrainer builds raw-content dictionaries.
//
// The dictionary is the tail of the concatenated samples, capped at maxDictSize.
// Codecs that use the end of a dictionary as match history (S2, zstd raw content)
// benefit from keeping the most recent samples.
type ContentTrainer struct{}

var _ Trainer = ContentTrainer{}

// NewContentTrainer creates a raw-content trainer.
func NewContentTrainer() ContentTrainer {
	return ContentTrainer{}
}

// Train returns a copy of the last maxDictSize bytes of the samples.
func (ContentTrainer) Train(samples []byte, sizes []int, maxDictSize int) ([]byte, error) {
	parts, err := SplitSamples(samples, sizes)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total > maxDictSize {
		total = maxDictSize
	}

	dict := make([]byte, total)
	end := total
	for i := len(parts) - 1; i >= 0 && end > 0; i-- {
		p := parts[i]
		if len(p) > end {
			p = p[len(p)-end:]
		}
		end -= copy(dict[end-len(p):end], p)
	}

	return dict, nil
}

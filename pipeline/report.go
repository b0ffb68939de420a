package pipeline

import "time"

// Report summarizes a finished (or aborted) run.
type Report struct {
	RunID  string `json:"run_id" msgpack:"run_id"`
	Codec  string `json:"codec" msgpack:"codec"`
	Policy string `json:"policy" msgpack:"policy"`

	BlockSize         int  `json:"block_size" msgpack:"block_size"`
	TrainChunkSize    int  `json:"train_chunk_size" msgpack:"train_chunk_size"`
	CompressChunkSize int  `json:"compress_chunk_size" msgpack:"compress_chunk_size"`
	MaxDictSize       int  `json:"max_dict_size" msgpack:"max_dict_size"`
	GenerationLag     bool `json:"generation_lag" msgpack:"generation_lag"`
	Sequential        bool `json:"sequential" msgpack:"sequential"`

	SourceSize     int `json:"source_size" msgpack:"source_size"`
	Consumed       int `json:"consumed" msgpack:"consumed"`
	CompressedSize int `json:"compressed_size" msgpack:"compressed_size"`
	BaselineSize   int `json:"baseline_size,omitempty" msgpack:"baseline_size,omitempty"`

	Generations    uint64    `json:"generations" msgpack:"generations"`
	Windows        int       `json:"windows" msgpack:"windows"`
	Anomalies      int       `json:"anomalies" msgpack:"anomalies"`
	FinalState     SlotState `json:"final_state" msgpack:"final_state"`
	TerminalReason string    `json:"terminal_reason,omitempty" msgpack:"terminal_reason,omitempty"`
	Error          string    `json:"error,omitempty" msgpack:"error,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns" msgpack:"elapsed_ns"`

	Chunks       []ChunkMetrics    `json:"chunks" msgpack:"chunks"`
	Dictionaries []DictionaryEvent `json:"dictionaries" msgpack:"dictionaries"`
}

// Ratio returns SourceSize / CompressedSize over the consumed part of the source.
func (r *Report) Ratio() float64 {
	if r.CompressedSize == 0 {
		return 0
	}

	return float64(r.Consumed) / float64(r.CompressedSize)
}

// BaselineRatio returns the ratio obtained without dictionaries, or 0 when no baseline was measured.
func (r *Report) BaselineRatio() float64 {
	if r.BaselineSize == 0 {
		return 0
	}

	return float64(r.Consumed) / float64(r.BaselineSize)
}

// GenerationsUsed returns the generation numbers used by the windows in order, with runs of the same generation collapsed.
func (r *Report) GenerationsUsed() []uint64 {
	used := make([]uint64, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		if len(used) == 0 || used[len(used)-1] != c.Generation {
			used = append(used, c.Generation)
		}
	}

	return used
}

func (r *Report) accumulate(chunks []ChunkMetrics, dicts []DictionaryEvent) {
	r.Chunks = chunks
	r.Dictionaries = dicts
	r.Windows = len(chunks)
	for _, c := range chunks {
		r.CompressedSize += c.CompressedSize
		r.BaselineSize += c.BaselineSize
		if c.Anomaly {
			r.Anomalies++
		}
	}
}

package pipeline

import (
	"sync"
	"time"
)

// ProgressReport is emitted after every compression window.
type ProgressReport struct {
	TotalConsumed int `json:"total_consumed" msgpack:"total_consumed"`
	SrcSize       int `json:"src_size" msgpack:"src_size"`
}

// Fraction returns the consumed fraction of the source in [0, 1].
func (p ProgressReport) Fraction() float64 {
	if p.SrcSize == 0 {
		return 1
	}

	return float64(p.TotalConsumed) / float64(p.SrcSize)
}

// DictionaryEvent is emitted after every successful training step.
type DictionaryEvent struct {
	Generation  uint64        `json:"generation" msgpack:"generation"`
	Size        int           `json:"size" msgpack:"size"`
	Fingerprint uint64        `json:"fingerprint" msgpack:"fingerprint"`
	WindowStart int           `json:"window_start" msgpack:"window_start"`
	WindowSize  int           `json:"window_size" msgpack:"window_size"`
	Samples     int           `json:"samples" msgpack:"samples"`
	SampleBytes int           `json:"sample_bytes" msgpack:"sample_bytes"`
	Elapsed     time.Duration `json:"elapsed_ns" msgpack:"elapsed_ns"`

	// Dict is a read-only view of the published dictionary.
	Dict []byte `json:"-" msgpack:"-"`
}

// ChunkMetrics is emitted after every compression window.
type ChunkMetrics struct {
	Window          int           `json:"window" msgpack:"window"`
	Offset          int           `json:"offset" msgpack:"offset"`
	Size            int           `json:"size" msgpack:"size"`
	Blocks          int           `json:"blocks" msgpack:"blocks"`
	CompressedSize  int           `json:"compressed_size" msgpack:"compressed_size"`
	BaselineSize    int           `json:"baseline_size,omitempty" msgpack:"baseline_size,omitempty"`
	Generation      uint64        `json:"generation" msgpack:"generation"`
	DictSize        int           `json:"dict_size" msgpack:"dict_size"`
	LatestPublished uint64        `json:"latest_published" msgpack:"latest_published"`
	Ratio           float64       `json:"ratio" msgpack:"ratio"`
	MatchRatio      float64       `json:"match_ratio,omitempty" msgpack:"match_ratio,omitempty"`
	Anomaly         bool          `json:"anomaly,omitempty" msgpack:"anomaly,omitempty"`
	State           SlotState     `json:"state" msgpack:"state"`
	Decision        SlotState     `json:"decision" msgpack:"decision"`
	Why             string        `json:"why" msgpack:"why"`
	Elapsed         time.Duration `json:"elapsed_ns" msgpack:"elapsed_ns"`
}

// Observer receives pipeline events.
//
// OnDictionary is called from the training goroutine; OnProgress and OnChunk
// from the compression goroutine. Implementations must be safe for that and
// must not block for long, since the emitting coordinator waits for them.
type Observer interface {
	OnProgress(ProgressReport)
	OnDictionary(DictionaryEvent)
	OnChunk(ChunkMetrics)
}

// ObserverFuncs adapts optional callbacks to the Observer interface.
type ObserverFuncs struct {
	Progress   func(ProgressReport)
	Dictionary func(DictionaryEvent)
	Chunk      func(ChunkMetrics)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnProgress(p ProgressReport) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnDictionary(e DictionaryEvent) {
	if o.Dictionary != nil {
		o.Dictionary(e)
	}
}

func (o ObserverFuncs) OnChunk(m ChunkMetrics) {
	if o.Chunk != nil {
		o.Chunk(m)
	}
}

// collector accumulates events for the run report and forwards them to the
// user observers.
type collector struct {
	mu           sync.Mutex
	chunks       []ChunkMetrics
	dictionaries []DictionaryEvent
	next         []Observer
}

func newCollector(next []Observer) *collector {
	return &collector{next: next}
}

func (c *collector) OnProgress(p ProgressReport) {
	for _, o := range c.next {
		o.OnProgress(p)
	}
}

func (c *collector) OnDictionary(e DictionaryEvent) {
	c.mu.Lock()
	c.dictionaries = append(c.dictionaries, e)
	c.mu.Unlock()

	for _, o := range c.next {
		o.OnDictionary(e)
	}
}

func (c *collector) OnChunk(m ChunkMetrics) {
	c.mu.Lock()
	c.chunks = append(c.chunks, m)
	c.mu.Unlock()

	for _, o := range c.next {
		o.OnChunk(m)
	}
}

func (c *collector) snapshot() ([]ChunkMetrics, []DictionaryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ChunkMetrics(nil), c.chunks...), append([]DictionaryEvent(nil), c.dictionaries...)
}

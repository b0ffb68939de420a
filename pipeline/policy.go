package pipeline

import (
	"fmt"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/format"
)

// WindowStats describes one compressed window as seen by a retrain policy.
type WindowStats struct {
	Window         int
	Generation     uint64
	DictSize       int
	RawSize        int
	CompressedSize int
	BaselineSize   int  // 0 unless baseline compression is enabled
	Terminal       bool // the slot was already Terminal when the window started
}

// Ratio returns RawSize / CompressedSize.
func (w WindowStats) Ratio() float64 {
	if w.CompressedSize == 0 {
		return 0
	}

	return float64(w.RawSize) / float64(w.CompressedSize)
}

// MatchRatio returns BaselineSize / CompressedSize, the gain the dictionary
// brought over compressing the same window without one. It is 0 when no
// baseline was measured.
func (w WindowStats) MatchRatio() float64 {
	if w.BaselineSize == 0 || w.CompressedSize == 0 {
		return 0
	}

	return float64(w.BaselineSize) / float64(w.CompressedSize)
}

// Signal returns the degradation signal: MatchRatio when available, else Ratio.
func (w WindowStats) Signal() float64 {
	if m := w.MatchRatio(); m > 0 {
		return m
	}

	return w.Ratio()
}

// Decision is a retrain policy's verdict for the slot after a window.
type Decision struct {
	Next    SlotState // Empty, Ready or Terminal
	Reason  error     // set when Next is Terminal
	Anomaly bool      // the window breached the ratio floor
	Why     string    // short label for logs and metrics
}

// RetrainPolicy decides when the pipeline trains new dictionaries.
//
// Policies are consulted by the compress coordinator only, so implementations
// may keep per-run state without locking. A policy instance belongs to one run.
type RetrainPolicy interface {
	// Type identifies the policy.
	Type() format.PolicyType

	// TrainThreshold returns the remaining byte count at or below which no
	// further training is attempted.
	TrainThreshold(trainChunkSize int) int

	// FreezeFirst reports whether the first trained generation is pinned for the whole run.
	FreezeFirst() bool

	// Select picks the generation used to compress the next window.
	Select(l Lease, lag bool) Generation

	// Next decides the slot state after a window has been compressed.
	Next(w WindowStats) Decision
}

// AdaptiveParams configures the adaptive policies. The two predicates are independent.
type AdaptiveParams struct {
	// DropThreshold enables the drop predicate when > 0: a relative fall of the
	// signal versus the previous window above this fraction requests a new dictionary.
	DropThreshold float64

	// Floor enables the floor predicate when > 0: a signal below it marks the
	// window anomalous.
	Floor float64

	// RetrainOnFloor makes a floor breach request a new dictionary as well.
	RetrainOnFloor bool
}

// Default adaptive parameters.
const (
	DefaultDropThreshold = 0.10
	DefaultFloor         = 1.0
)

// NewPolicy creates the named retrain policy.
//
// thresholdFactor scales the training threshold (threshold = factor × trainChunkSize);
// values below 1 are treated as 1. params only apply to the adaptive policies;
// PolicyAdaptiveFloor forces RetrainOnFloor.
func NewPolicy(t format.PolicyType, thresholdFactor int, params AdaptiveParams) (RetrainPolicy, error) {
	base := thresholdPolicy{factor: max(thresholdFactor, 1)}

	switch t {
	case format.PolicyContinuous:
		return &ContinuousPolicy{thresholdPolicy: base}, nil
	case format.PolicyOnce:
		return &OncePolicy{thresholdPolicy: base}, nil
	case format.PolicyAdaptive, format.PolicyAdaptiveFloor:
		if params.DropThreshold < 0 || params.Floor < 0 {
			return nil, fmt.Errorf("%w: adaptive drop threshold %v and floor %v must not be negative",
				errs.ErrInvalidConfig, params.DropThreshold, params.Floor)
		}
		if t == format.PolicyAdaptiveFloor {
			if params.Floor == 0 {
				return nil, fmt.Errorf("%w: %s requires a positive floor", errs.ErrInvalidConfig, t)
			}
			params.RetrainOnFloor = true
		}

		return &AdaptivePolicy{thresholdPolicy: base, params: params}, nil
	default:
		return nil, fmt.Errorf("%w: retrain policy %s", errs.ErrInvalidConfig, t)
	}
}

type thresholdPolicy struct {
	factor int
}

func (p thresholdPolicy) TrainThreshold(trainChunkSize int) int {
	return p.factor * trainChunkSize
}

func selectLagged(l Lease, lag bool) Generation {
	if lag {
		return l.Previous
	}

	return l.Current
}

// ContinuousPolicy retrains after every window.
type ContinuousPolicy struct {
	thresholdPolicy
}

func (p *ContinuousPolicy) Type() format.PolicyType { return format.PolicyContinuous }

func (p *ContinuousPolicy) FreezeFirst() bool { return false }

func (p *ContinuousPolicy) Select(l Lease, lag bool) Generation { return selectLagged(l, lag) }

func (p *ContinuousPolicy) Next(WindowStats) Decision {
	return Decision{Next: StateEmpty, Why: "continuous"}
}

// OncePolicy trains a single dictionary and uses it for every window.
//
// The first window waits for the first training attempt; afterwards the slot
// goes Terminal so the trainer stops.
type OncePolicy struct {
	thresholdPolicy
}

func (p *OncePolicy) Type() format.PolicyType { return format.PolicyOnce }

func (p *OncePolicy) FreezeFirst() bool { return true }

func (p *OncePolicy) Select(l Lease, lag bool) Generation {
	if l.First != nil {
		return *l.First
	}

	return selectLagged(l, lag)
}

func (p *OncePolicy) Next(WindowStats) Decision {
	return Decision{Next: StateTerminal, Reason: errs.ErrDictionaryFrozen, Why: "frozen"}
}

// AdaptivePolicy keeps the current generation until the compression signal degrades.
//
// Per window:
//   - windows compressed with the empty generation request a dictionary (warm-up)
//   - drop predicate: (prev - cur) / prev > DropThreshold requests a new dictionary
//   - floor predicate: cur < Floor marks the window anomalous, and requests a new
//     dictionary only when RetrainOnFloor is set (the adaptive-floor variant)
//   - otherwise the generation is reused
type AdaptivePolicy struct {
	thresholdPolicy
	params AdaptiveParams

	last    float64
	hasLast bool
}

func (p *AdaptivePolicy) Type() format.PolicyType {
	if p.params.RetrainOnFloor {
		return format.PolicyAdaptiveFloor
	}

	return format.PolicyAdaptive
}

func (p *AdaptivePolicy) FreezeFirst() bool { return false }

func (p *AdaptivePolicy) Select(l Lease, lag bool) Generation { return selectLagged(l, lag) }

// Params returns the policy parameters.
func (p *AdaptivePolicy) Params() AdaptiveParams {
	return p.params
}

// Dropped reports whether the drop predicate fires for cur given the previous signal prev.
func (p *AdaptivePolicy) Dropped(prev, cur float64) bool {
	if p.params.DropThreshold <= 0 || prev <= 0 {
		return false
	}

	return (prev-cur)/prev > p.params.DropThreshold
}

// BelowFloor reports whether the floor predicate fires for cur.
func (p *AdaptivePolicy) BelowFloor(cur float64) bool {
	return p.params.Floor > 0 && cur < p.params.Floor
}

func (p *AdaptivePolicy) Next(w WindowStats) Decision {
	if w.Generation == 0 {
		return Decision{Next: StateEmpty, Why: "warm-up"}
	}

	cur := w.Signal()
	d := Decision{Next: StateReady, Why: "reuse"}

	if p.hasLast && p.Dropped(p.last, cur) {
		d.Next, d.Why = StateEmpty, "drop"
	}
	if p.BelowFloor(cur) {
		d.Anomaly = true
		if p.params.RetrainOnFloor {
			d.Next, d.Why = StateEmpty, "floor"
		}
	}

	p.last, p.hasLast = cur, true

	return d
}

package pipeline

import "fmt"

// SlotState is the state of the dictionary slot shared by the two coordinators.
//
// Transitions:
//
//	Empty ──publish──▶ Ready ──mark consumed──▶ Empty | Ready | Terminal
//	any ──▶ Terminal (no further training)
//	any ──▶ Aborted  (fatal failure)
//
// Terminal and Aborted are absorbing, except that a Terminal slot can still be aborted.
type SlotState uint8

const (
	// StateEmpty means no unconsumed dictionary is available; it is the trainer's turn.
	StateEmpty SlotState = iota
	// StateReady means a published generation is available; it is the compressor's turn.
	StateReady
	// StateTerminal means no further training will happen; the compressor reuses the last generation.
	StateTerminal
	// StateAborted means a fatal failure occurred; both coordinators stop.
	StateAborted
)

func (s SlotState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateTerminal:
		return "terminal"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// IsFinal reports whether s is Terminal or Aborted.
func (s SlotState) IsFinal() bool {
	return s == StateTerminal || s == StateAborted
}

// MarshalText implements encoding.TextMarshaler.
func (s SlotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SlotState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "empty":
		*s = StateEmpty
	case "ready":
		*s = StateReady
	case "terminal":
		*s = StateTerminal
	case "aborted":
		*s = StateAborted
	default:
		return fmt.Errorf("unknown slot state %q", text)
	}

	return nil
}

// Generation is one trained dictionary and its sequence number.
//
// Sequence 0 is the empty generation every run starts with; trained generations
// are numbered from 1 in publish order. Dict is never modified once published.
type Generation struct {
	Seq  uint64
	Dict []byte
}

// Size returns the dictionary size in bytes.
func (g Generation) Size() int {
	return len(g.Dict)
}

// IsEmpty reports whether g carries no dictionary.
func (g Generation) IsEmpty() bool {
	return len(g.Dict) == 0
}

package pipeline

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/arloliu/dictstream/errs"
)

// Slot is the single shared holder of dictionary generations between the
// train and compress coordinators.
//
// Hand-off protocol:
//   - Empty: the trainer's turn. The trainer samples and trains outside the lock,
//     then publishes, which moves current → previous and sets Ready.
//   - Ready: the compressor's turn. The compressor compresses one window outside
//     the lock, then marks it consumed with the state the retrain policy chose.
//   - Terminal / Aborted: both waiter sets are woken and never block again.
//
// Because the state acts as a turn token, at most one generation is ever in
// flight ahead of consumption, and the cursor only moves inside MarkConsumed.
//
// Thread-safety:
//   - All fields protected by mu
//   - produced: waited on by the compressor while Empty
//   - consumed: waited on by the trainer while Ready
type Slot struct {
	// --- Hand-off State ---

	mu       sync.Mutex
	produced *sync.Cond // Signals "dictionary produced"
	consumed *sync.Cond // Signals "dictionary consumed"
	state    SlotState

	current  Generation  // Most recently published generation
	previous Generation  // Generation published before current (one-generation lag)
	first    *Generation // Frozen copy of the first generation, when requested
	latest   uint64      // Sequence number of the latest published generation

	// --- Cursor ---

	cursor  int // Bytes consumed by the compressor; never decreases
	srcSize int

	// --- Lifecycle ---

	reason error // Terminal reason or abort cause
}

// NewSlot creates an Empty slot for a source of srcSize bytes.
func NewSlot(srcSize int) *Slot {
	s := &Slot{srcSize: srcSize}
	s.produced = sync.NewCond(&s.mu)
	s.consumed = sync.NewCond(&s.mu)

	return s
}

// TrainTicket is the trainer's snapshot of the slot taken when its turn starts.
type TrainTicket struct {
	State    SlotState
	Consumed int
	SrcSize  int
	Latest   uint64
}

// Remaining returns the number of source bytes not yet consumed.
func (t TrainTicket) Remaining() int {
	return t.SrcSize - t.Consumed
}

// Lease is the compressor's snapshot of the slot taken when its turn starts.
//
// Generation buffers in a lease are shared with the slot and must be treated as read-only.
type Lease struct {
	State    SlotState
	Consumed int
	SrcSize  int
	Current  Generation
	Previous Generation
	First    *Generation
	Latest   uint64
}

// Remaining returns the number of source bytes not yet consumed.
func (l Lease) Remaining() int {
	return l.SrcSize - l.Consumed
}

// AcquireForTraining blocks while a published generation awaits consumption.
//
// It returns immediately once the slot is Empty, Terminal or Aborted; the caller
// must check the returned state and stop on Terminal or Aborted.
func (s *Slot) AcquireForTraining() TrainTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == StateReady {
		s.consumed.Wait()
	}

	return TrainTicket{
		State:    s.state,
		Consumed: s.cursor,
		SrcSize:  s.srcSize,
		Latest:   s.latest,
	}
}

// Publish installs dict as the new current generation and hands the turn to the compressor.
//
// The slot takes ownership of dict. When freezeFirst is set and no generation
// has been frozen yet, a separate copy of dict is kept as the first generation.
//
// Returns ErrSlotClosed if the slot became Terminal or Aborted while training,
// and ErrSlotBusy if the previous generation has not been consumed.
func (s *Slot) Publish(dict []byte, freezeFirst bool) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminal, StateAborted:
		return Generation{}, fmt.Errorf("%w: slot is %s", errs.ErrSlotClosed, s.state)
	case StateReady:
		return Generation{}, fmt.Errorf("%w: generation %d not consumed yet", errs.ErrSlotBusy, s.latest)
	}

	s.latest++
	s.previous = s.current
	s.current = Generation{Seq: s.latest, Dict: dict}
	if freezeFirst && s.first == nil {
		s.first = &Generation{Seq: s.latest, Dict: bytes.Clone(dict)}
	}
	s.state = StateReady
	s.produced.Signal()

	return s.current, nil
}

// AcquireForCompression blocks while the slot is Empty.
//
// It returns once a generation is Ready, or the slot is Terminal or Aborted.
func (s *Slot) AcquireForCompression() Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == StateEmpty {
		s.produced.Wait()
	}

	return Lease{
		State:    s.state,
		Consumed: s.cursor,
		SrcSize:  s.srcSize,
		Current:  s.current,
		Previous: s.previous,
		First:    s.first,
		Latest:   s.latest,
	}
}

// MarkConsumed advances the cursor by n bytes and sets the state chosen by the retrain policy.
//
// next must be Empty (request a new dictionary), Ready (keep reusing) or Terminal
// (stop training, with reason). A Terminal slot stays Terminal whatever next is.
// Advancing past the end of the source aborts the slot with ErrBoundsViolation.
//
// Returns the new cursor position.
func (s *Slot) MarkConsumed(n int, next SlotState, reason error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAborted {
		return s.cursor, s.abortErrLocked()
	}
	if n < 0 || n > s.srcSize-s.cursor {
		s.abortLocked(fmt.Errorf("%w: consuming %d bytes at %d of %d", errs.ErrBoundsViolation, n, s.cursor, s.srcSize))
		return s.cursor, s.abortErrLocked()
	}

	s.cursor += n
	if s.state == StateTerminal {
		s.consumed.Broadcast()
		return s.cursor, nil
	}

	switch next {
	case StateEmpty, StateReady:
		s.state = next
		s.consumed.Signal()
	case StateTerminal:
		s.terminalLocked(reason)
	default:
		s.abortLocked(fmt.Errorf("%w: invalid next state %s", errs.ErrBoundsViolation, next))
		return s.cursor, s.abortErrLocked()
	}

	return s.cursor, nil
}

// MarkTerminal stops further training. It returns false if the slot was already Terminal or Aborted.
func (s *Slot) MarkTerminal(reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsFinal() {
		return false
	}
	s.terminalLocked(reason)

	return true
}

// MarkAborted stops both coordinators. It returns false if the slot was already Aborted.
func (s *Slot) MarkAborted(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAborted {
		return false
	}
	s.abortLocked(cause)

	return true
}

func (s *Slot) terminalLocked(reason error) {
	s.state = StateTerminal
	s.reason = reason
	s.produced.Broadcast()
	s.consumed.Broadcast()
}

func (s *Slot) abortLocked(cause error) {
	s.state = StateAborted
	s.reason = cause
	s.produced.Broadcast()
	s.consumed.Broadcast()
}

func (s *Slot) abortErrLocked() error {
	if s.reason == nil {
		return errs.ErrAborted
	}

	return fmt.Errorf("%w: %w", errs.ErrAborted, s.reason)
}

// State returns the current slot state.
func (s *Slot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Consumed returns the cursor position.
func (s *Slot) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

// Latest returns the sequence number of the latest published generation.
func (s *Slot) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest
}

// Reason returns why the slot became Terminal or Aborted, or nil.
func (s *Slot) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reason
}

// Err returns the abort error if the slot is Aborted, or nil.
func (s *Slot) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAborted {
		return nil
	}

	return s.abortErrLocked()
}

// Package errs defines the sentinel errors returned by dictstream packages.
//
// Callers match them with errors.Is; producers wrap them with fmt.Errorf("%w: ...")
// to attach context.
package errs

import "errors"

// Pipeline conditions that degrade the run to dictionary reuse. They are recorded
// as the terminal reason of a run and never returned from Pipeline.Run.
var (
	// ErrNotEnoughData indicates the remaining source is at or below the training threshold.
	ErrNotEnoughData = errors.New("not enough data to train a dictionary")
	// ErrInsufficientLookahead indicates the lookahead window is smaller than the training chunk.
	ErrInsufficientLookahead = errors.New("insufficient lookahead for sampling")
	// ErrTrainerFailure indicates the trainer produced no dictionary or one over the size limit.
	ErrTrainerFailure = errors.New("dictionary trainer failure")
	// ErrSourceExhausted indicates the compressor consumed the whole source.
	ErrSourceExhausted = errors.New("source exhausted")
	// ErrDictionaryFrozen indicates the retrain policy pinned a dictionary for the rest of the run.
	ErrDictionaryFrozen = errors.New("dictionary frozen by retrain policy")
)

// Fatal pipeline conditions. Any of them moves the slot to Aborted.
var (
	// ErrCopyFailure indicates a scratch buffer copy could not complete.
	ErrCopyFailure = errors.New("scratch buffer copy failure")
	// ErrBoundsViolation indicates inconsistent window or block accounting.
	ErrBoundsViolation = errors.New("bounds violation")
	// ErrAborted wraps the cause of an aborted run.
	ErrAborted = errors.New("pipeline aborted")
)

// Usage errors.
var (
	// ErrSlotClosed is returned when publishing into a slot that is Terminal or Aborted.
	ErrSlotClosed = errors.New("dictionary slot closed")
	// ErrSlotBusy is returned when publishing before the previous generation was consumed.
	ErrSlotBusy = errors.New("dictionary slot busy")
	// ErrInvalidConfig indicates an invalid pipeline or file configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnsupportedCodec indicates an unknown compression, trainer or policy type.
	ErrUnsupportedCodec = errors.New("unsupported codec")
	// ErrEmptySource indicates a run was started without source data.
	ErrEmptySource = errors.New("empty source")
	// ErrDictionaryMismatch indicates a block is decompressed with a dictionary other than the one it was compressed with.
	ErrDictionaryMismatch = errors.New("dictionary mismatch")
)

// IsFatal reports whether err carries one of the conditions that abort a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCopyFailure) ||
		errors.Is(err, ErrBoundsViolation) ||
		errors.Is(err, ErrAborted)
}

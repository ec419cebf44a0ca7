package term

import "fmt"

// InvalidEpochUseError is raised when producing on an epoch after
// finishedEpoch has been called, or on an id that was never created.
// It is a programmer error and is always fatal.
type InvalidEpochUseError struct {
	Op    string
	Epoch string
	Label string
}

func (e *InvalidEpochUseError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("invalid epoch use: %s on %s (label=%q)", e.Op, e.Epoch, e.Label)
	}
	return fmt.Sprintf("invalid epoch use: %s on %s", e.Op, e.Epoch)
}

// EnvelopeCorruptionError is raised when an incoming envelope's epoch id
// bytes cannot be decoded. Unlike the
// programmer-error kinds, it is recoverable: the message is dropped and the
// error logged.
type EnvelopeCorruptionError struct {
	Reason string
}

func (e *EnvelopeCorruptionError) Error() string {
	return fmt.Sprintf("envelope corruption: %s", e.Reason)
}

// WindowOverflowError is a soft internal diagnostic raised if compressed
// window growth looks unbounded. It is informational; callers may
// choose to log and continue.
type WindowOverflowError struct {
	Lane      string
	Intervals int
}

func (e *WindowOverflowError) Error() string {
	return fmt.Sprintf("window overflow: lane %s has %d compressed intervals", e.Lane, e.Intervals)
}

package common

import "errors"

// Class groups taxonomy errors by what the caller should do next.
type Class int

const (
	ClassUnknown Class = iota
	// ClassRejected: the edit itself was refused (not found, invalid, or
	// no permission). Retrying the same input will not help.
	ClassRejected
	// ClassRetryLater: contention outlasted the retry budget.
	ClassRetryLater
	// ClassUnavailable: the store could not be reached reliably.
	ClassUnavailable
	// ClassBug: an integrity check caught a read-modify-write defect.
	ClassBug
)

func (c Class) String() string {
	switch c {
	case ClassRejected:
		return "rejected"
	case ClassRetryLater:
		return "retry_later"
	case ClassUnavailable:
		return "unavailable"
	case ClassBug:
		return "bug"
	default:
		return "unknown"
	}
}

// Classify maps an error from a controller operation to its Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrCorruptionRisk), errors.Is(err, ErrIntegrity):
		return ClassBug
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidChange), errors.Is(err, ErrPermission):
		return ClassRejected
	case errors.Is(err, ErrConcurrencyExhausted), errors.Is(err, ErrConflict):
		return ClassRetryLater
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTransfer), errors.Is(err, ErrShape):
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}

// ExitCode is the process exit status used by the docsync CLI for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Classify(err) {
	case ClassRejected:
		return 1
	case ClassRetryLater:
		return 3
	case ClassBug:
		return 4
	default:
		return 2
	}
}

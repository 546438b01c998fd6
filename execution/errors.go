package execution

import "errors"

var (
	// ErrInvalidParameters indicates required spreadsheet identifiers are
	// missing. Rejected before any stage runs.
	ErrInvalidParameters = errors.New("invalid execution parameters")

	// ErrNotFound indicates an unknown or evicted execution id.
	ErrNotFound = errors.New("execution not found")

	// ErrIllegalTransition indicates a state change the machine forbids.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrAlreadyTerminal indicates an operation on a finished execution.
	ErrAlreadyTerminal = errors.New("execution already terminal")

	// ErrStillRunning indicates an operation that requires a finished
	// execution, such as eviction.
	ErrStillRunning = errors.New("execution still running")
)

package master

import "errors"

var (
	// ErrAllocation is returned when the result buffer or ledger cannot be sized.
	// The run must not start.
	ErrAllocation = errors.New("cannot allocate run state")

	// ErrProtocolViolation is returned when a worker sends something the
	// protocol does not allow (unknown worker, result for a range it was not
	// given, ready signal after termination).
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTransport is returned when the transport fails underneath the scheduler.
	ErrTransport = errors.New("transport failure")
)

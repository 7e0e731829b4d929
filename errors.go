package upcheck

import "errors"

// Probe coordination errors.
var (
	// ErrNotOwner indicates a status update was attempted by a worker
	// that does not hold the peer's lease.
	ErrNotOwner = errors.New("not the lease owner")

	// ErrUnknownPeer indicates the peer index is not registered.
	ErrUnknownPeer = errors.New("unknown peer index")

	// ErrUnknownUpstream indicates the upstream group name is not configured.
	ErrUnknownUpstream = errors.New("unknown upstream group")

	// ErrCheckDisabled indicates the peer's upstream group has health
	// checking disabled.
	ErrCheckDisabled = errors.New("health checking disabled for upstream")

	// ErrCASFailed indicates a compare-and-swap on the shared status
	// store failed after the bounded retry budget.
	ErrCASFailed = errors.New("compare-and-swap failed")

	// ErrNotStarted indicates the monitor has not been started yet.
	ErrNotStarted = errors.New("monitor not started")

	// ErrAlreadyStarted indicates the monitor is already running.
	ErrAlreadyStarted = errors.New("monitor already started")

	// ErrStoreClosed indicates the status store was closed.
	ErrStoreClosed = errors.New("status store closed")
)

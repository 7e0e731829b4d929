package upcheck

// state is the position of a probe session inside one attempt. It only
// exists while a probe is in flight; terminal results are reported as
// an Outcome.
type state int

const (
	// stateWaiting is the idle state between probes.
	stateWaiting state = iota

	// stateSending is writing the request bytes.
	stateSending

	// stateReadingStatusLine scans for the space that starts the
	// status code.
	stateReadingStatusLine

	// stateReadingStatusCode accumulates the numeric status code.
	stateReadingStatusCode

	// stateReadingHeader skips header bytes, hunting the blank line.
	stateReadingHeader

	// stateHeaderAlmostDone has seen a newline and is checking whether
	// the next line is blank.
	stateHeaderAlmostDone

	// stateReadingBody matches body bytes against the expected pattern.
	stateReadingBody
)

// Outcome is the terminal result of one probe attempt.
type Outcome int

const (
	// OutcomeNone means no probe has finished yet.
	OutcomeNone Outcome = iota

	// OutcomeOK is a passing probe: status 200 and, if configured, an
	// exact body match.
	OutcomeOK

	// OutcomeBadStatusLine means the status line was malformed.
	OutcomeBadStatusLine

	// OutcomeBadStatusCode means the status code was not 200.
	OutcomeBadStatusCode

	// OutcomeBadBody means the body diverged from the expected bytes.
	OutcomeBadBody

	// OutcomeBadConnection covers connect failures and connections
	// closed before a verdict.
	OutcomeBadConnection

	// OutcomeTimedOut means the attempt exceeded the probe timeout.
	OutcomeTimedOut

	// OutcomeBufferFull means the receive buffer filled before a
	// verdict was reached.
	OutcomeBufferFull

	// OutcomeInternalError marks a state machine bug; it never occurs
	// in normal operation.
	OutcomeInternalError
)

// Bad reports whether the outcome counts as a failed probe. Every
// terminal outcome except OutcomeOK is bad, including OutcomeNone,
// which never reaches the damping path.
func (o Outcome) Bad() bool {
	return o != OutcomeOK
}

// String returns the outcome's symbolic name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeOK:
		return "ok"
	case OutcomeBadStatusLine:
		return "bad_status_line"
	case OutcomeBadStatusCode:
		return "bad_status_code"
	case OutcomeBadBody:
		return "bad_body"
	case OutcomeBadConnection:
		return "bad_connection"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeBufferFull:
		return "buffer_full"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

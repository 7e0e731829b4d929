package upcheck

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Session drives health probes for one peer. A session belongs to one
// worker and is reused across probes: the receive buffer and parse
// offsets are cleared, not reallocated, at the start of each attempt.
// Sessions are not safe for concurrent use; each is driven by its
// peer's scheduler goroutine only.
type Session struct {
	peer *Peer

	state state

	// start is when the current attempt began; elapsed time against
	// it enforces the probe timeout.
	start time.Time

	// sendPos is the offset into the request bytes already written.
	sendPos int

	// recv is the fixed-capacity receive buffer; recvLen marks the
	// filled prefix and readPos marks how far the parser has consumed.
	recv    []byte
	recvLen int
	readPos int

	// bodyPos is the offset into the expected body matched so far.
	bodyPos int

	// statCode accumulates the numeric status code.
	statCode int

	dialer net.Dialer
}

// NewSession creates a probe session for the given peer.
func NewSession(peer *Peer) *Session {
	return &Session{
		peer: peer,
		recv: make([]byte, peer.Config.BufferSize),
	}
}

// reset clears the session for a fresh attempt without reallocating the
// receive buffer.
func (s *Session) reset(now time.Time) {
	s.state = stateSending
	s.start = now
	s.sendPos = 0
	s.recvLen = 0
	s.readPos = 0
	s.bodyPos = 0
	s.statCode = 0
}

// Run performs one complete probe: connect, send the configured request,
// then read and incrementally parse the response until a terminal
// outcome. It always returns a terminal outcome and always leaves the
// connection closed and the session back in its idle state.
func (s *Session) Run(ctx context.Context) Outcome {
	cfg := s.peer.Config
	s.reset(time.Now())
	defer func() { s.state = stateWaiting }()

	dialCtx, cancel := context.WithDeadline(ctx, s.start.Add(cfg.Timeout))
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.peer.Address)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return OutcomeTimedOut
		}
		return OutcomeBadConnection
	}
	defer conn.Close()

	// One absolute deadline covers the whole attempt; any blocked read
	// or write wakes up as a timeout once it passes.
	if err := conn.SetDeadline(s.start.Add(cfg.Timeout)); err != nil {
		return OutcomeBadConnection
	}

	if out, done := s.send(conn); done {
		return out
	}
	return s.receive(conn)
}

// send writes the request bytes, advancing sendPos until the whole
// request is on the wire, then moves to status-line parsing.
func (s *Session) send(conn net.Conn) (Outcome, bool) {
	request := s.peer.Config.Send
	for s.sendPos < len(request) {
		n, err := conn.Write(request[s.sendPos:])
		if err != nil {
			if isTimeout(err) {
				return OutcomeTimedOut, true
			}
			return OutcomeBadConnection, true
		}
		if n == 0 {
			return OutcomeBadConnection, true
		}
		s.sendPos += n
	}
	s.state = stateReadingStatusLine
	return OutcomeNone, false
}

// receive reads response bytes into the fixed buffer and feeds them to
// the parser until a terminal outcome is reached.
func (s *Session) receive(conn net.Conn) Outcome {
	cfg := s.peer.Config
	for {
		// Re-check elapsed time on every wakeup; a response that
		// arrives after the timeout still counts as timed out.
		if time.Since(s.start) >= cfg.Timeout {
			return OutcomeTimedOut
		}

		n, err := conn.Read(s.recv[s.recvLen:])
		if err != nil {
			if isTimeout(err) {
				return OutcomeTimedOut
			}
			// EOF before a verdict means the peer closed early;
			// that is a connection failure, not a body mismatch.
			return OutcomeBadConnection
		}
		if n == 0 {
			return OutcomeBadConnection
		}
		s.recvLen += n

		if out, done := s.parse(); done {
			return out
		}
		if s.recvLen == len(s.recv) {
			// Buffer exhausted and still no verdict.
			return OutcomeBufferFull
		}
	}
}

// parse consumes newly received bytes one at a time, single pass with
// no backtracking, and reports whether a terminal outcome was reached.
//
// The status line is scanned only for the space that starts the status
// code; a line terminator before it is malformed. The code accumulates
// base-10 digits and must be exactly 200. Header bytes are skipped
// unvalidated; the scan only hunts for the blank line that ends them.
// After the blank line, either the check is already satisfied (no
// expected body) or each body byte is matched positionally against the
// expected pattern, where both a mismatch and an overrun are bad.
func (s *Session) parse() (Outcome, bool) {
	expected := s.peer.Config.Expected

	for s.readPos < s.recvLen {
		ch := s.recv[s.readPos]
		s.readPos++

		switch s.state {
		case stateReadingStatusLine:
			if ch == ' ' {
				s.state = stateReadingStatusCode
				s.statCode = 0
			} else if ch == '\r' || ch == '\n' {
				return OutcomeBadStatusLine, true
			}

		case stateReadingStatusCode:
			switch {
			case ch == ' ':
				if s.statCode != 200 {
					return OutcomeBadStatusCode, true
				}
				s.state = stateReadingHeader
			case ch < '0' || ch > '9':
				return OutcomeBadStatusLine, true
			default:
				s.statCode = s.statCode*10 + int(ch-'0')
			}

		case stateReadingHeader:
			if ch == '\n' {
				s.state = stateHeaderAlmostDone
			}

		case stateHeaderAlmostDone:
			if ch == '\n' {
				if expected == nil {
					return OutcomeOK, true
				}
				s.state = stateReadingBody
			} else if ch != '\r' {
				s.state = stateReadingHeader
			}

		case stateReadingBody:
			if s.bodyPos == len(expected) {
				// Body matched in full but keeps going.
				return OutcomeBadBody, true
			}
			if ch != expected[s.bodyPos] {
				return OutcomeBadBody, true
			}
			s.bodyPos++

		default:
			return OutcomeInternalError, true
		}
	}

	if s.state == stateReadingBody && s.bodyPos == len(expected) {
		return OutcomeOK, true
	}
	return OutcomeNone, false
}

// isTimeout reports whether err is a deadline expiry rather than a
// connection failure.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

package upcheck

import "time"

// ApplyOutcome folds one terminal probe outcome into a peer's shared
// status record. Callers must hold the record's exclusive access (a
// StatusStore Update callback).
//
// Direction changes reset the consecutive counter to 1 and restamp the
// streak start; same-direction results increment it. The externally
// visible Down flag is reassigned only when the counter reaches
// failCount, so a peer must be good or bad failCount times in a row
// before its verdict flips. The last outcome code is always recorded
// for diagnostics, verdict change or not.
func ApplyOutcome(st *PeerStatus, code Outcome, failCount int, now time.Time) {
	if code.Bad() == st.LastDown {
		st.Concurrent++
	} else {
		st.LastDown = code.Bad()
		st.Concurrent = 1
		st.Since = now
	}
	if st.Concurrent >= failCount {
		st.Down = st.LastDown
	}
	st.LastCode = code
	st.ActionTime = now
}

package upcheck

import "time"

// SetDownForTest pokes the lock-free down mirror directly, bypassing
// the store. Test use only.
func (r *Registry) SetDownForTest(index int, down bool) {
	r.setDown(index, down)
}

// BuildSendForTest exposes request framing to tests.
func BuildSendForTest(lines []string) []byte {
	return buildSend(lines)
}

// StaleAfterForTest exposes the lease staleness window to tests.
func StaleAfterForTest(cfg *UpstreamConfig) time.Duration {
	return cfg.staleAfter()
}

package upcheck

import (
	"encoding/json"
	"time"
)

// PeerStatus is the shared status record for one peer. Every worker
// sees the same record through the status store; only the current lease
// owner may mutate it, and all mutation happens under the store's
// exclusive-access primitive.
type PeerStatus struct {
	// Owner is the worker currently holding this peer's lease, or
	// empty if no worker has claimed it yet.
	Owner string `json:"owner,omitempty"`

	// ActionTime is the last time the owner touched this record. It
	// doubles as the lease heartbeat: an owner silent past the
	// staleness window is presumed dead.
	ActionTime time.Time `json:"actionTime"`

	// Concurrent counts consecutive same-direction results.
	Concurrent int `json:"concurrent"`

	// Since is when the current streak began.
	Since time.Time `json:"since"`

	// LastDown reports whether the most recent probe was bad. It can
	// disagree with Down until the streak reaches the failcount.
	LastDown bool `json:"lastDown"`

	// LastCode is the terminal outcome of the last finished probe.
	LastCode Outcome `json:"lastCode"`

	// Down is the externally visible verdict. It only changes when
	// Concurrent reaches the group's failcount.
	Down bool `json:"down"`
}

// PeerSnapshot is the per-peer diagnostic view served by the status
// report endpoint.
type PeerSnapshot struct {
	Index      int       `json:"index"`
	Upstream   string    `json:"upstream"`
	Address    string    `json:"address"`
	Enabled    bool      `json:"enabled"`
	Owner      string    `json:"owner,omitempty"`
	ActionTime time.Time `json:"actionTime"`
	Concurrent int       `json:"concurrent"`
	Since      time.Time `json:"since"`
	LastDown   bool      `json:"lastDown"`
	LastCode   Outcome   `json:"-"`
	Down       bool      `json:"down"`
}

// snapshotJSON is used for custom JSON marshaling.
type snapshotJSON struct {
	Index      int       `json:"index"`
	Upstream   string    `json:"upstream"`
	Address    string    `json:"address"`
	Enabled    bool      `json:"enabled"`
	Owner      string    `json:"owner,omitempty"`
	ActionTime time.Time `json:"actionTime"`
	Concurrent int       `json:"concurrent"`
	Since      time.Time `json:"since"`
	LastDown   bool      `json:"lastDown"`
	LastCode   string    `json:"lastCode"`
	Down       bool      `json:"down"`
}

// MarshalJSON implements json.Marshaler to serialize LastCode as its
// symbolic name.
func (s PeerSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Index:      s.Index,
		Upstream:   s.Upstream,
		Address:    s.Address,
		Enabled:    s.Enabled,
		Owner:      s.Owner,
		ActionTime: s.ActionTime,
		Concurrent: s.Concurrent,
		Since:      s.Since,
		LastDown:   s.LastDown,
		LastCode:   s.LastCode.String(),
		Down:       s.Down,
	})
}

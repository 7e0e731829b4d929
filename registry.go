package upcheck

import (
	"fmt"
	"sync/atomic"
)

// Peer is one backend endpoint being probed. Peers are immutable after
// registration and live for the process lifetime.
type Peer struct {
	// Index is the peer's stable position in the registry. It is the
	// handle external callers use for IsDown queries.
	Index int

	// Upstream is the owning group's name.
	Upstream string

	// Address is the host:port the probe connects to.
	Address string

	// Config points at the owning group's shared probe configuration.
	Config *UpstreamConfig
}

// Registry is the static list of peers to probe, built once at
// configuration time. It also carries a lock-free mirror of each peer's
// down flag so the hot request path never touches the status store.
type Registry struct {
	upstreams map[string]*UpstreamConfig
	peers     []*Peer
	down      []*atomic.Bool
	sealed    atomic.Bool
}

// NewRegistry creates an empty registry holding the given upstream
// groups.
func NewRegistry(upstreams ...*UpstreamConfig) *Registry {
	r := &Registry{
		upstreams: make(map[string]*UpstreamConfig, len(upstreams)),
	}
	for _, u := range upstreams {
		r.upstreams[u.Name] = u
	}
	return r
}

// NewRegistryFromConfig builds a registry with every peer of every
// upstream in cfg registered, in file order.
func NewRegistryFromConfig(cfg *FileConfig) (*Registry, error) {
	ups := make([]*UpstreamConfig, 0, len(cfg.Upstreams))
	for i := range cfg.Upstreams {
		ups = append(ups, cfg.Upstreams[i].ToUpstreamConfig())
	}
	r := NewRegistry(ups...)
	for i := range cfg.Upstreams {
		for _, addr := range cfg.Upstreams[i].Peers {
			if _, err := r.AddPeer(cfg.Upstreams[i].Name, addr); err != nil {
				return nil, err
			}
		}
	}
	r.Seal()
	return r, nil
}

// AddPeer registers one peer under the named upstream group and returns
// its stable index. Registration is setup-time only; AddPeer is not safe
// for use once workers are running.
func (r *Registry) AddPeer(upstream, address string) (int, error) {
	if r.sealed.Load() {
		return 0, fmt.Errorf("registry is sealed: %w", ErrAlreadyStarted)
	}
	cfg, ok := r.upstreams[upstream]
	if !ok {
		return 0, fmt.Errorf("add peer %q: %w", upstream, ErrUnknownUpstream)
	}
	peer := &Peer{
		Index:    len(r.peers),
		Upstream: upstream,
		Address:  address,
		Config:   cfg,
	}
	r.peers = append(r.peers, peer)
	r.down = append(r.down, new(atomic.Bool))
	return peer.Index, nil
}

// Seal marks the registry complete. Workers only run against sealed
// registries.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	return len(r.peers)
}

// Peer returns the peer at index, or nil if the index is out of range.
func (r *Registry) Peer(index int) *Peer {
	if index < 0 || index >= len(r.peers) {
		return nil
	}
	return r.peers[index]
}

// Peers returns the registered peers in index order. The returned slice
// must not be modified.
func (r *Registry) Peers() []*Peer {
	return r.peers
}

// IsDown reports the externally visible verdict for the peer at index.
// It returns false for out-of-range indices and for peers whose group
// has health checking disabled. The read is a single atomic load,
// suitable for a hot request path.
func (r *Registry) IsDown(index int) bool {
	if index < 0 || index >= len(r.peers) {
		return false
	}
	return r.peers[index].Config.Enabled && r.down[index].Load()
}

// setDown updates the lock-free mirror of one peer's down flag. Called
// by the verdict path and by store watchers in non-owning processes.
func (r *Registry) setDown(index int, down bool) {
	if index < 0 || index >= len(r.down) {
		return
	}
	r.down[index].Store(down)
}

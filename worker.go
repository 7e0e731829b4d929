package upcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ownershipRetryFactor scales the probe delay into the retry interval
// for unowned peers. An unowned peer is re-attempted every ten delays
// in case its current owner dies.
const ownershipRetryFactor = 10

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// ID identifies this worker in lease records. Required.
	ID string

	// Registry is the sealed peer list to drive. Required.
	Registry *Registry

	// Store is the shared status store. Required.
	Store StatusStore

	// Clock drives the probe and ownership timers. Defaults to the
	// real clock.
	Clock clockwork.Clock

	Logger  *slog.Logger
	Metrics *Metrics
}

func (c *WorkerConfig) validate() error {
	if c.ID == "" {
		return fmt.Errorf("worker ID is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	return nil
}

// Worker schedules health probes for every enabled peer it manages to
// own. Each peer gets its own goroutine: first an ownership phase that
// attempts to take the peer's lease, then a probe phase that runs one
// probe per delay interval and folds the outcome into the shared
// status record. Losing the lease demotes the peer back to the
// ownership phase, so a worker never probes a peer another worker is
// driving.
type Worker struct {
	id       string
	registry *Registry
	store    StatusStore
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *Metrics
	rng      *rand.Rand
	wg       sync.WaitGroup
}

// NewWorker creates a worker for the given registry and store.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		id:       cfg.ID,
		registry: cfg.Registry,
		store:    cfg.Store,
		clock:    clock,
		logger:   loggerOrDefault(cfg.Logger).With("component", "worker", "worker", cfg.ID),
		metrics:  cfg.Metrics,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run drives probes until ctx is cancelled. On cancellation all timers
// are discarded and in-flight connections abandoned; nothing is
// re-armed.
func (w *Worker) Run(ctx context.Context) {
	for _, peer := range w.registry.Peers() {
		if !peer.Config.Enabled {
			continue
		}
		w.wg.Add(1)
		// The first ownership attempt is jittered within one delay so
		// many workers restarting together don't synchronize.
		go w.peerLoop(ctx, peer, w.jitter(peer.Config.Delay))
	}
	w.wg.Wait()
}

func (w *Worker) peerLoop(ctx context.Context, peer *Peer, initial time.Duration) {
	defer w.wg.Done()

	cfg := peer.Config
	session := NewSession(peer)
	logger := w.logger.With("peer", peer.Index, "upstream", peer.Upstream, "address", peer.Address)

	timer := w.clock.NewTimer(initial)
	defer timer.Stop()
	owned := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		if !owned {
			ok, err := w.store.Acquire(ctx, peer.Index, w.id, cfg.staleAfter())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("lease acquisition failed", "error", err)
				timer.Reset(ownershipRetryFactor * cfg.Delay)
				continue
			}
			if !ok {
				timer.Reset(ownershipRetryFactor * cfg.Delay)
				continue
			}
			owned = true
			logger.Debug("peer owned, probing begins")
			if w.metrics != nil {
				w.metrics.SetLeaseOwned(peer.Upstream, peer.Address, true)
			}
			timer.Reset(cfg.Delay)
			continue
		}

		started := w.clock.Now()
		outcome := session.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if outcome == OutcomeInternalError {
			logger.Error("probe state machine reached an unreachable state")
		}

		var down bool
		err := w.store.Update(ctx, peer.Index, w.id, func(st *PeerStatus) {
			ApplyOutcome(st, outcome, cfg.FailCount, w.clock.Now())
			down = st.Down
		})
		switch {
		case errors.Is(err, ErrNotOwner):
			// Another worker adopted this peer while we stalled.
			owned = false
			logger.Warn("lease lost, returning to acquisition")
			if w.metrics != nil {
				w.metrics.SetLeaseOwned(peer.Upstream, peer.Address, false)
			}
			timer.Reset(ownershipRetryFactor * cfg.Delay)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.Error("status update failed", "outcome", outcome, "error", err)
		default:
			w.registry.setDown(peer.Index, down)
			if w.metrics != nil {
				w.metrics.ObserveProbe(peer.Upstream, peer.Address, outcome, w.clock.Since(started))
				w.metrics.SetPeerUp(peer.Upstream, peer.Address, !down)
			}
			logger.Debug("probe finished", "outcome", outcome, "down", down)
		}
		timer.Reset(cfg.Delay)
	}
}

// jitter returns a uniformly random duration in [0, d).
func (w *Worker) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(w.rng.Int63n(int64(d)))
}

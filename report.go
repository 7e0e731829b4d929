package upcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Reporter serves the per-peer diagnostic snapshots over HTTP.
type Reporter struct {
	registry *Registry
	store    StatusStore
	logger   *slog.Logger
	server   *http.Server
}

// NewReporter creates a reporter over the given registry and store.
func NewReporter(registry *Registry, store StatusStore, logger *slog.Logger) *Reporter {
	return &Reporter{
		registry: registry,
		store:    store,
		logger:   loggerOrDefault(logger).With("component", "reporter"),
	}
}

// Snapshot returns the diagnostic view of every registered peer.
func (r *Reporter) Snapshot(ctx context.Context) ([]PeerSnapshot, error) {
	peers := r.registry.Peers()
	snaps := make([]PeerSnapshot, 0, len(peers))
	for _, peer := range peers {
		st, err := r.store.Get(ctx, peer.Index)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, PeerSnapshot{
			Index:      peer.Index,
			Upstream:   peer.Upstream,
			Address:    peer.Address,
			Enabled:    peer.Config.Enabled,
			Owner:      st.Owner,
			ActionTime: st.ActionTime,
			Concurrent: st.Concurrent,
			Since:      st.Since,
			LastDown:   st.LastDown,
			LastCode:   st.LastCode,
			Down:       st.Down,
		})
	}
	return snaps, nil
}

// Start begins serving the status endpoints on addr.
func (r *Reporter) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", r.handleStatus)
	mux.HandleFunc("/healthz", r.handleHealthz)

	r.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("status server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Stop stops the status server.
func (r *Reporter) Stop() {
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.server.Shutdown(ctx)
	}
}

// handleStatus handles the /status endpoint (per-peer diagnostics).
func (r *Reporter) handleStatus(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	snaps, err := r.Snapshot(ctx)
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snaps)
}

// handleHealthz handles the /healthz endpoint (liveness).
func (r *Reporter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

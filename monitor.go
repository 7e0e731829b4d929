package upcheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultNATSBucket is the JetStream KV bucket used when the config
// does not name one.
const DefaultNATSBucket = "UPCHECK_STATUS"

// Monitor wires a registry, status store, worker, reporter and metrics
// together for one process. It is the main entry point of the package.
type Monitor struct {
	cfg      *FileConfig
	opts     *monitorOptions
	logger   *slog.Logger
	registry *Registry
	store    StatusStore
	worker   *Worker
	reporter *Reporter
	metrics  *Metrics

	mu      sync.Mutex
	started bool
}

// New builds a monitor from the given configuration. Defaults are
// applied and the configuration validated; every peer of every
// upstream is registered in file order, so peer indices are stable
// across workers sharing the same config.
func New(cfg *FileConfig, opts ...MonitorOption) (*Monitor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	options := defaultMonitorOptions()
	for _, opt := range opts {
		opt(options)
	}
	logger := loggerOrDefault(options.logger).With("worker", cfg.WorkerID)

	registry, err := NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store := options.store
	if store == nil {
		if len(cfg.NATS.Servers) > 0 {
			bucket := cfg.NATS.Bucket
			if bucket == "" {
				bucket = DefaultNATSBucket
			}
			store, err = NewNATSStore(context.Background(), NATSStoreConfig{
				Servers:     cfg.NATS.Servers,
				Credentials: cfg.NATS.Credentials,
				Bucket:      bucket,
				NumPeers:    registry.Len(),
				Logger:      logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create NATS status store: %w", err)
			}
		} else {
			store = NewMemoryStore(registry.Len())
		}
	}

	var metrics *Metrics
	if options.metrics {
		metrics = NewMetrics(cfg.WorkerID)
	}

	worker, err := NewWorker(WorkerConfig{
		ID:       cfg.WorkerID,
		Registry: registry,
		Store:    store,
		Clock:    options.clock,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Monitor{
		cfg:      cfg,
		opts:     options,
		logger:   logger,
		registry: registry,
		store:    store,
		worker:   worker,
		reporter: NewReporter(registry, store, logger),
		metrics:  metrics,
	}, nil
}

// Run starts the worker, the verdict mirror and the HTTP surfaces, and
// blocks until ctx is cancelled. The store is closed on the way out.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	defer m.store.Close()

	statusAddr := m.opts.statusAddr
	if statusAddr == "" {
		statusAddr = m.cfg.StatusAddr
	}
	if statusAddr != "" {
		if err := m.reporter.Start(ctx, statusAddr); err != nil {
			return err
		}
	}

	metricsAddr := m.opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = m.cfg.MetricsAddr
	}
	if m.metrics != nil && metricsAddr != "" {
		if err := m.metrics.Start(ctx, metricsAddr); err != nil {
			return err
		}
	}

	// Mirror verdict changes made by other workers into the lock-free
	// down flags, so IsDown stays correct for peers this process does
	// not own.
	events, err := m.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch status store: %w", err)
	}
	go func() {
		for ev := range events {
			m.registry.setDown(ev.Index, ev.Status.Down)
		}
	}()

	m.logger.Info("monitor started", "peers", m.registry.Len())
	m.worker.Run(ctx)
	m.logger.Info("monitor stopped")
	return nil
}

// IsDown reports the externally visible verdict for the peer at index.
// It is safe to call from a request hot path at any time, including
// before Run.
func (m *Monitor) IsDown(index int) bool {
	return m.registry.IsDown(index)
}

// Registry returns the monitor's peer registry.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// Snapshot returns the diagnostic view of every registered peer.
func (m *Monitor) Snapshot(ctx context.Context) ([]PeerSnapshot, error) {
	return m.reporter.Snapshot(ctx)
}

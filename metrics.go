package upcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics manages Prometheus metrics for one worker process.
type Metrics struct {
	workerID string
	registry *prometheus.Registry
	server   *http.Server

	PeerUp        *prometheus.GaugeVec
	LeaseOwned    *prometheus.GaugeVec
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec
}

// NewMetrics creates a new metrics manager.
func NewMetrics(workerID string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		workerID: workerID,
		registry: registry,

		PeerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upcheck_peer_up",
			Help: "1 if the peer's externally visible verdict is up",
		}, []string{"worker", "upstream", "peer"}),

		LeaseOwned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upcheck_lease_owned",
			Help: "1 if this worker holds the peer's probe lease",
		}, []string{"worker", "upstream", "peer"}),

		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upcheck_probes_total",
			Help: "Completed probes by terminal outcome",
		}, []string{"worker", "upstream", "peer", "outcome"}),

		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upcheck_probe_duration_seconds",
			Help:    "Probe duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"worker", "upstream"}),
	}

	registry.MustRegister(
		m.PeerUp,
		m.LeaseOwned,
		m.ProbesTotal,
		m.ProbeDuration,
	)
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Start begins serving the metrics endpoint on addr.
func (m *Metrics) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		// Shutdown errors surface through the serving goroutine exit.
		_ = m.server.ListenAndServe()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Stop stops the metrics server.
func (m *Metrics) Stop() {
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.server.Shutdown(ctx)
	}
}

// SetPeerUp updates the peer verdict gauge.
func (m *Metrics) SetPeerUp(upstream, peer string, up bool) {
	val := 0.0
	if up {
		val = 1.0
	}
	m.PeerUp.WithLabelValues(m.workerID, upstream, peer).Set(val)
}

// SetLeaseOwned updates the lease ownership gauge.
func (m *Metrics) SetLeaseOwned(upstream, peer string, owned bool) {
	val := 0.0
	if owned {
		val = 1.0
	}
	m.LeaseOwned.WithLabelValues(m.workerID, upstream, peer).Set(val)
}

// ObserveProbe records one completed probe.
func (m *Metrics) ObserveProbe(upstream, peer string, outcome Outcome, duration time.Duration) {
	m.ProbesTotal.WithLabelValues(m.workerID, upstream, peer, outcome.String()).Inc()
	m.ProbeDuration.WithLabelValues(m.workerID, upstream).Observe(duration.Seconds())
}

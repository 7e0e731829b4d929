package upcheck

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// MonitorOption configures a Monitor.
type MonitorOption func(*monitorOptions)

type monitorOptions struct {
	logger      *slog.Logger
	store       StatusStore
	clock       clockwork.Clock
	metrics     bool
	statusAddr  string
	metricsAddr string
}

func defaultMonitorOptions() *monitorOptions {
	return &monitorOptions{
		metrics: true,
	}
}

// Logger sets the logger for the monitor and its components.
func Logger(l *slog.Logger) MonitorOption {
	return func(o *monitorOptions) {
		o.logger = l
	}
}

// Store overrides the status store. Without it, the monitor uses the
// NATS store when the config names NATS servers and the in-process
// memory store otherwise.
func Store(s StatusStore) MonitorOption {
	return func(o *monitorOptions) {
		o.store = s
	}
}

// Clock overrides the scheduler clock. Tests use a fake clock here.
func Clock(c clockwork.Clock) MonitorOption {
	return func(o *monitorOptions) {
		o.clock = c
	}
}

// StatusAddr sets the HTTP address for the status report endpoints,
// overriding the config file.
func StatusAddr(addr string) MonitorOption {
	return func(o *monitorOptions) {
		o.statusAddr = addr
	}
}

// MetricsAddr sets the HTTP address for the Prometheus endpoint,
// overriding the config file.
func MetricsAddr(addr string) MonitorOption {
	return func(o *monitorOptions) {
		o.metricsAddr = addr
	}
}

// NoMetrics disables Prometheus metrics collection entirely.
func NoMetrics() MonitorOption {
	return func(o *monitorOptions) {
		o.metrics = false
	}
}

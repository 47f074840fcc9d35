package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the relay loop.
type Metrics struct {
	blocksScanned    prometheus.Counter
	eventsRelayed    prometheus.Counter
	relayFailures    prometheus.Counter
	iterationErrors  prometheus.Counter
	checkpointHeight prometheus.Gauge
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			blocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_relay_blocks_scanned_total",
				Help: "Total number of blocks scanned for bridge events",
			}),
			eventsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_relay_events_relayed_total",
				Help: "Total number of events delivered to the destination",
			}),
			relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_relay_delivery_failures_total",
				Help: "Total number of failed delivery attempts",
			}),
			iterationErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_relay_iteration_errors_total",
				Help: "Total number of loop iterations that ended in error",
			}),
			checkpointHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bridge_relay_checkpoint_height",
				Help: "Last durably checkpointed block height",
			}),
		}
		prometheus.MustRegister(
			metrics.blocksScanned,
			metrics.eventsRelayed,
			metrics.relayFailures,
			metrics.iterationErrors,
			metrics.checkpointHeight,
		)
	})
	return metrics
}

// BlocksScanned adds n to the scanned blocks counter.
func (m *Metrics) BlocksScanned(n float64) {
	if m != nil {
		m.blocksScanned.Add(n)
	}
}

// EventRelayed increments the relayed events counter.
func (m *Metrics) EventRelayed() {
	if m != nil {
		m.eventsRelayed.Inc()
	}
}

// DeliveryFailure increments the failed delivery attempts counter.
func (m *Metrics) DeliveryFailure() {
	if m != nil {
		m.relayFailures.Inc()
	}
}

// IterationError increments the failed iterations counter.
func (m *Metrics) IterationError() {
	if m != nil {
		m.iterationErrors.Inc()
	}
}

// CheckpointHeight records the latest persisted checkpoint.
func (m *Metrics) CheckpointHeight(height uint64) {
	if m != nil {
		m.checkpointHeight.Set(float64(height))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics exposes the operational gauges/counters described
// in SPEC_FULL.md section 3.5: queue depth/drops, active follower
// count, watchdog staleness, and broadcast failures. This is ordinary
// operational observability, not the WCET instrumentation spec.md
// excludes as out of scope.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/eventqueue"
)

// Collector registers and updates the coordination kernel's metrics.
// It implements eventqueue.Recorder so a *Collector can be passed
// directly to eventqueue.New.
type Collector struct {
	registry *prometheus.Registry

	queueDepth   *prometheus.GaugeVec
	queueDropped *prometheus.CounterVec

	activeFollowers prometheus.Gauge
	watchdogStale   prometheus.Counter
	broadcastFail   prometheus.Counter
}

// New constructs and registers a fresh Collector.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoon_eventqueue_depth",
			Help: "Current number of pending events per priority level.",
		}, []string{"kind"}),
		queueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platoon_eventqueue_dropped_total",
			Help: "Total events dropped because their priority ring was full.",
		}, []string{"kind"}),
		activeFollowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platoon_active_followers",
			Help: "Number of currently active follower sessions (leader only).",
		}),
		watchdogStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "platoon_watchdog_stale_total",
			Help: "Total LeaderTimeout events emitted by the watchdog (follower only).",
		}),
		broadcastFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "platoon_broadcast_failures_total",
			Help: "Total failed sends during a leader broadcast.",
		}),
	}
	reg.MustRegister(c.queueDepth, c.queueDropped, c.activeFollowers, c.watchdogStale, c.broadcastFail)
	return c
}

// Dropped implements eventqueue.Recorder.
func (c *Collector) Dropped(kind eventqueue.Kind) {
	c.queueDropped.WithLabelValues(kind.String()).Inc()
}

// Depth implements eventqueue.Recorder.
func (c *Collector) Depth(kind eventqueue.Kind, n int) {
	c.queueDepth.WithLabelValues(kind.String()).Set(float64(n))
}

// SetActiveFollowers records the current topology size.
func (c *Collector) SetActiveFollowers(n int) {
	c.activeFollowers.Set(float64(n))
}

// IncWatchdogStale records one LeaderTimeout emission.
func (c *Collector) IncWatchdogStale() {
	c.watchdogStale.Inc()
}

// IncBroadcastFailure records one failed send during a broadcast.
func (c *Collector) IncBroadcastFailure() {
	c.broadcastFail.Inc()
}

// Handler returns the Prometheus exposition HTTP handler. Callers
// decide whether to ever serve it; an unused Collector has the same
// memory cost whether or not Handler is ever mounted.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP listener exposing Handler at /metrics, per
// SPEC_FULL.md section 3.5's optional --metrics-addr. An empty addr
// starts no listener and returns nil. The returned *http.Server
// satisfies io.Closer, so callers register it with a shutdown.Latch
// the same way they register any other socket.
func (c *Collector) Serve(addr string, log zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// Package healthz exposes the liveness and metrics HTTP surface used by
// operators and container orchestrators to watch the monitoring loop.
package healthz

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors the orchestrator updates once
// per cycle.
type Metrics struct {
	CyclesTotal            prometheus.Counter
	DealsScoredTotal       prometheus.Counter
	NotificationsSentTotal prometheus.Counter
	CycleFailuresTotal     prometheus.Counter
	ConsecutiveFailures    prometheus.Gauge
	LastCycleTimestamp     prometheus.Gauge
	CycleDuration          prometheus.Histogram
}

// NewMetrics registers and returns the service's metric collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealwatcher_cycles_total",
			Help: "Total number of scan cycles run.",
		}),
		DealsScoredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealwatcher_deals_scored_total",
			Help: "Total number of deals scored across all cycles.",
		}),
		NotificationsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealwatcher_notifications_sent_total",
			Help: "Total number of notifications successfully sent.",
		}),
		CycleFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealwatcher_cycle_failures_total",
			Help: "Total number of cycles that ended in a scraper/storage error.",
		}),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealwatcher_consecutive_cycle_failures",
			Help: "Current count of consecutive failed cycles.",
		}),
		LastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealwatcher_last_cycle_unixtime",
			Help: "Unix timestamp of the start of the last completed cycle.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealwatcher_cycle_duration_seconds",
			Help:    "Wall-clock duration of each scan cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.DealsScoredTotal,
		m.NotificationsSentTotal,
		m.CycleFailuresTotal,
		m.ConsecutiveFailures,
		m.LastCycleTimestamp,
		m.CycleDuration,
	)

	return m
}

// Tracker records the time of the most recent cycle, regardless of
// outcome, and answers liveness checks against a staleness threshold.
type Tracker struct {
	mu         sync.RWMutex
	lastCycle  time.Time
	staleAfter time.Duration
}

// NewTracker builds a Tracker that considers the service unhealthy once
// staleAfter has elapsed since the last recorded cycle.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{staleAfter: staleAfter, lastCycle: time.Now()}
}

// RecordCycle stores at as the time of the most recent cycle. The
// orchestrator calls it after each cycle with that cycle's start time.
func (t *Tracker) RecordCycle(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCycle = at
}

// Healthy reports whether the last cycle happened within staleAfter.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.lastCycle) <= t.staleAfter
}

// NewServer builds the /healthz + /metrics router.
func NewServer(tracker *Tracker, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if tracker.Healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("stale"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

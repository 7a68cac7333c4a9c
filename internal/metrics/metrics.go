// Package metrics exposes capture counters to Prometheus.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/spreadwatch/internal/logger"
	"github.com/rewired-gh/spreadwatch/internal/models"
)

const namespace = "spreadwatch"

// Poll outcomes.
const (
	ResultOK           = "ok"
	ResultDisconnected = "disconnected"
	ResultPersistError = "persist_error"
	ResultSkipped      = "skipped"
)

type Metrics struct {
	registry        *prometheus.Registry
	polls           *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	rowsRejected    *prometheus.CounterVec
	duplicateRows   prometheus.Counter
	events          *prometheus.CounterVec
	persistFailures prometheus.Counter
	tracked         prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Capture polls by outcome",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Capture poll duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows that failed spread validation",
		}, []string{"reason"}),
		duplicateRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_rows_total",
			Help:      "Rows skipped because their spread was already read in the same poll",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed change events",
		}, []string{"kind", "type"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Snapshot batches rolled back",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_spreads",
			Help:      "Live price points in the tracker",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.pollDuration,
		m.rowsRejected,
		m.duplicateRows,
		m.events,
		m.persistFailures,
		m.tracked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObservePoll(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	m.pollDuration.Observe(d.Seconds())
}

func (m *Metrics) RowRejected(reason string) {
	if m == nil {
		return
	}
	m.rowsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) DuplicateRow() {
	if m == nil {
		return
	}
	m.duplicateRows.Inc()
}

func (m *Metrics) EventsCommitted(events []models.ChangeEvent) {
	if m == nil {
		return
	}
	for _, e := range events {
		m.events.WithLabelValues(string(e.Kind), string(e.SpreadType)).Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

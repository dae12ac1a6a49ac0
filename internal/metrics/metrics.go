// Package metrics exposes prometheus collectors for the check engine
// and an optional HTTP listener serving /metrics and /healthz.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	cyclesTotal        prometheus.Counter
	checksTotal        *prometheus.CounterVec
	notificationsTotal prometheus.Counter
	cycleDuration      prometheus.Summary
	lastCycleTime      prometheus.Gauge
	checksInFlight     prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

func New() *Metrics {
	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricetracker_cycles_total",
			Help: "Number of completed check cycles.",
		}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricetracker_checks_total",
			Help: "Number of per-product checks by classification.",
		}, []string{"result"}),
		notificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricetracker_notifications_total",
			Help: "Number of price alerts dispatched.",
		}),
		cycleDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Name:       "pricetracker_cycle_duration_seconds",
			Help:       "Duration of check cycles.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		lastCycleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricetracker_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.",
		}),
		checksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricetracker_checks_in_flight",
			Help: "Product checks currently running.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.cyclesTotal,
		m.checksTotal,
		m.notificationsTotal,
		m.cycleDuration,
		m.lastCycleTime,
		m.checksInFlight,
	)
	return m
}

// ObserveCheck records the outcome of one product check.
func (m *Metrics) ObserveCheck(result models.CheckResult) {
	m.checksTotal.WithLabelValues(string(result.Class)).Inc()
	if result.Notified {
		m.notificationsTotal.Inc()
	}
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(sum models.CycleSummary) {
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(sum.End.Sub(sum.Start).Seconds())
	m.lastCycleTime.Set(float64(sum.End.Unix()))
}

// CheckStarted and CheckDone bracket an in-flight product check.
func (m *Metrics) CheckStarted() { m.checksInFlight.Inc() }
func (m *Metrics) CheckDone()    { m.checksInFlight.Dec() }

// Serve exposes /metrics and /healthz on addr. Blocks until Shutdown.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := m.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

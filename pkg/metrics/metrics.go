// Package metrics exposes the Prometheus counters and gauges the
// Scheduler, Dispatcher, Rule Engine, and Notification Pipeline update
// as they run, plus the /metrics HTTP handler that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every PriceGuard metric behind a private Prometheus
// registry, so tests can build one without colliding with the default
// global registry.
type Registry struct {
	registry *prometheus.Registry

	TasksScheduled   *prometheus.CounterVec
	DispatchAdmitted prometheus.Counter
	DispatchDuration prometheus.Histogram
	ObservationsDone *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec
	DeliveriesSent   *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	BatchesOpen      prometheus.Gauge
}

// New builds and registers every PriceGuard metric.
func New() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,
		TasksScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceguard_tasks_scheduled_total",
			Help: "Monitoring tasks created by the Scheduler, by lane.",
		}, []string{"lane"}),
		DispatchAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceguard_dispatch_admitted_total",
			Help: "Tasks admitted into a lane worker pool across all dispatch cycles.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "priceguard_dispatch_cycle_seconds",
			Help:    "Wall-clock duration of one dispatch admission cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		ObservationsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceguard_observations_total",
			Help: "Completed product observations, by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceguard_events_published_total",
			Help: "Analyzer events published onto the event bus, by type.",
		}, []string{"type"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceguard_alerts_fired_total",
			Help: "Alerts the Rule Engine produced, by event type.",
		}, []string{"event_type"}),
		DeliveriesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceguard_deliveries_total",
			Help: "Notification deliveries attempted, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "priceguard_delivery_latency_seconds",
			Help:    "Time from alert creation to delivery send, by channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		BatchesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "priceguard_batches_open",
			Help: "Notification batches currently pending dispatch.",
		}),
	}

	registry.MustRegister(
		r.TasksScheduled, r.DispatchAdmitted, r.DispatchDuration, r.ObservationsDone,
		r.EventsPublished, r.AlertsFired, r.DeliveriesSent, r.DeliveryLatency, r.BatchesOpen,
	)
	return r
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveDispatchCycle records one dispatch cycle's duration and admitted count.
func (r *Registry) ObserveDispatchCycle(start time.Time, admitted int) {
	r.DispatchDuration.Observe(time.Since(start).Seconds())
	r.DispatchAdmitted.Add(float64(admitted))
}

// Package metrics wires spec.md's observability surface into Prometheus.
// Grounded on jsndz-signalbus/metrics/prometheus.go (CounterVec/HistogramVec
// per concern, a single Init that MustRegisters them), reworked from
// package-level globals into an injectable Collectors struct so tests can
// construct an isolated registry instead of mutating the default one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every counter/gauge/histogram this module registers.
// The worker pool updates the four counters, and Core.QueueStats sets the
// queue gauges. SendDuration and the HTTP vectors are registered but no
// code in this module updates them.
type Collectors struct {
	EmailsSent     prometheus.Counter
	EmailsFailed   prometheus.Counter
	SendRetries    prometheus.Counter
	RateDeferrals  prometheus.Counter
	SendDuration   prometheus.Histogram
	QueueWaiting   prometheus.Gauge
	QueueActive    prometheus.Gauge
	QueueDelayed   prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPErrors     *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New builds a fresh Collectors and registers every metric against reg.
// Pass prometheus.NewRegistry() in tests, prometheus.DefaultRegisterer in
// production (cmd/server, cmd/worker).
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkmail_emails_sent_total",
			Help: "Total number of emails successfully sent.",
		}),
		EmailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkmail_emails_failed_total",
			Help: "Total number of emails that exhausted retries and failed permanently.",
		}),
		SendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkmail_send_retries_total",
			Help: "Total number of transient send failures that were retried.",
		}),
		RateDeferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkmail_rate_deferrals_total",
			Help: "Total number of jobs deferred because the sender's hourly budget was exhausted.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bulkmail_send_duration_seconds",
			Help:    "Time taken by Mailer.Send calls.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkmail_queue_waiting",
			Help: "Jobs whose due time has passed and are ready to lease.",
		}),
		QueueActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkmail_queue_active",
			Help: "Jobs currently leased by a worker.",
		}),
		QueueDelayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkmail_queue_delayed",
			Help: "Jobs enqueued with a due time in the future.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmail_http_requests_total",
			Help: "Total HTTP requests received by the façade.",
		}, []string{"route", "method", "status"}),
		HTTPErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkmail_http_errors_total",
			Help: "Total HTTP requests that returned 4xx/5xx.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkmail_http_request_duration_seconds",
			Help:    "HTTP request latency for the façade.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		c.EmailsSent, c.EmailsFailed, c.SendRetries, c.RateDeferrals, c.SendDuration,
		c.QueueWaiting, c.QueueActive, c.QueueDelayed,
		c.HTTPRequests, c.HTTPErrors, c.HTTPDuration,
	)
	return c
}

// ObserveQueueStats copies a queue.Stats snapshot into the gauges; called
// by Core.QueueStats each time a snapshot is taken, not on every queue
// operation.
func (c *Collectors) ObserveQueueStats(waiting, active, delayed int) {
	c.QueueWaiting.Set(float64(waiting))
	c.QueueActive.Set(float64(active))
	c.QueueDelayed.Set(float64(delayed))
}

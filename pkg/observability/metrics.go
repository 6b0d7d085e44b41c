package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "comfyctl"

// Metrics groups the collectors used across a run.
type Metrics struct {
	Requests        *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	PollTicks       prometheus.Counter
	Downloads       *prometheus.CounterVec
	JobWait         prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests sent to the execution server, by verb and status code.",
			},
			[]string{"verb", "code"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_retries_total",
				Help:      "Retried HTTP attempts after a transient failure.",
			},
			[]string{"verb"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP attempts against the execution server.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Orchestrated runs by final state.",
			},
			[]string{"outcome"},
		),
		PollTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "History checks performed while waiting for jobs.",
			},
		),
		Downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Output downloads by result.",
			},
			[]string{"result"},
		),
		JobWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_wait_seconds",
				Help:      "Time between submission and a terminal history record.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Retries, m.RequestDuration, m.Runs, m.PollTicks, m.Downloads, m.JobWait)
	}
	return m
}

// ObserveRequest records one HTTP attempt. code is 0 when no response arrived.
func (m *Metrics) ObserveRequest(verb string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.WithLabelValues(verb, label).Inc()
	m.RequestDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// ObserveRetry records that verb is being attempted again.
func (m *Metrics) ObserveRetry(verb string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(verb).Inc()
}

// ObserveRun records the final state of a run.
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

// ObservePoll records one history check.
func (m *Metrics) ObservePoll() {
	if m == nil {
		return
	}
	m.PollTicks.Inc()
}

// ObserveDownload records a download attempt.
func (m *Metrics) ObserveDownload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Downloads.WithLabelValues(result).Inc()
}

// ObserveWait records how long a job took to reach history.
func (m *Metrics) ObserveWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobWait.Observe(elapsed.Seconds())
}

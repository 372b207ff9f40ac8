package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sync SyncMetrics
	API  APIMetrics
	Repo RepoMetrics
}

type SyncMetrics struct {
	PushEntriesTotal     *prometheus.CounterVec   // outcome: completed|failed|skipped
	PushDurationSeconds  *prometheus.HistogramVec // per drain pass
	PullRowsTotal        *prometheus.CounterVec   // outcome: applied|failed|skipped
	PullDurationSeconds  *prometheus.HistogramVec
	OutboxEntries        *prometheus.GaugeVec   // status: pending|failed
	DependencyRecoveries *prometheus.CounterVec // result: resolved|placeholder|failed
	CircuitOpen          prometheus.Gauge
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type RepoMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Sync: SyncMetrics{
			PushEntriesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "push_entries_total",
				Help:      "Outbox entries processed by the push pipeline, by table and outcome.",
			}, []string{"table", "outcome"}),

			PushDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "push_duration_seconds",
				Help:      "Duration of one push drain pass.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"trigger"}), // request|scheduler|retry

			PullRowsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "pull_rows_total",
				Help:      "Remote change rows processed by the pull pipeline, by outcome.",
			}, []string{"table", "outcome"}),

			PullDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "pull_duration_seconds",
				Help:      "Duration of one pull pass.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"trigger"}),

			OutboxEntries: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "outbox_entries",
				Help:      "Current outbox entries by status.",
			}, []string{"status"}),

			DependencyRecoveries: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "dependency_recoveries_total",
				Help:      "Foreign-key dependency recovery attempts by result.",
			}, []string{"result"}),

			CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "possync",
				Subsystem: "sync",
				Name:      "circuit_open",
				Help:      "1 while the remote endpoint is in offline cooldown.",
			}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "possync",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "possync",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},

		Repo: RepoMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "possync",
				Subsystem: "db",
				Name:      "requests_total",
				Help:      "Total DB requests by operation, name and result.",
			}, []string{"op", "name", "result"}),

			DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "possync",
				Subsystem: "db",
				Name:      "request_duration_seconds",
				Help:      "DB request duration in seconds.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"op", "name", "result"}),
		},
	}
}

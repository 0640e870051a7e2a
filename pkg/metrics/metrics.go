// Package metrics exposes Prometheus instrumentation for the scan
// pipeline. Register once, then hand the Metrics value to the
// components that record into it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "l10dash"

// Metrics holds the collectors recorded by the ingestor and scheduler.
type Metrics struct {
	CandidatesScanned prometheus.Counter
	ResultsIngested   prometheus.Counter
	Duplicates        prometheus.Counter
	ParseFailures     prometheus.Counter
	RemoteFailures    prometheus.Counter
	PassDuration      prometheus.Histogram
	LastPassUnix      prometheus.Gauge
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_candidates_total",
			Help:      "Total remote candidates examined across all passes",
		}),
		ResultsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_ingested_total",
			Help:      "Total new test results persisted",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Total candidates skipped as already ingested",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Total archive names rejected by the parser",
		}),
		RemoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_failures_total",
			Help:      "Total passes aborted because the remote was unavailable",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of completed scan passes",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		LastPassUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time of the last completed scan pass",
		}),
	}

	reg.MustRegister(
		m.CandidatesScanned,
		m.ResultsIngested,
		m.Duplicates,
		m.ParseFailures,
		m.RemoteFailures,
		m.PassDuration,
		m.LastPassUnix,
	)

	return m
}

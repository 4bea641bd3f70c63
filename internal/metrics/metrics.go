package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fknsrs.biz/p/ytmentions/internal/processing"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ytmentions",
		Subsystem: "triage",
		Name:      "commands_total",
		Help:      "Triage commands issued by operators, by operation and outcome.",
	}, []string{"operation", "outcome"})

	batchVideosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ytmentions",
		Subsystem: "triage",
		Name:      "batch_videos_total",
		Help:      "Videos submitted for processing, by source.",
	}, []string{"source"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ytmentions",
		Subsystem: "catalog",
		Name:      "fetch_duration_seconds",
		Help:      "Time taken to load a catalog page, by result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ytmentions",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Operator sessions currently held in memory.",
	})

	transcriptChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ytmentions",
		Subsystem: "transcripts",
		Name:      "checks_total",
		Help:      "Transcript availability checks, by resulting status.",
	}, []string{"status"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ytmentions",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job runs, by queue and result.",
	}, []string{"queue", "result"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ytmentions",
		Subsystem: "db",
		Name:      "call_duration_seconds",
		Help:      "Time taken by database driver calls, by kind. Only recorded when query logging is on.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"kind"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ytmentions",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time taken to serve dashboard requests, by method and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

func ObserveCommand(operation, outcome string) {
	commandsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveBatch(source string, count int) {
	batchVideosTotal.WithLabelValues(source).Add(float64(count))
}

func ObserveFetch(d time.Duration, err error) {
	fetchDuration.WithLabelValues(resultOf(err)).Observe(d.Seconds())
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

func ObserveTranscriptCheck(status string) {
	transcriptChecksTotal.WithLabelValues(status).Inc()
}

func ObserveJob(queue string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	jobsTotal.WithLabelValues(queue, result).Inc()
}

func ObserveQuery(kind string, d time.Duration) {
	queryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func ObserveRequest(method, status string, d time.Duration) {
	requestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, processing.ErrTransport):
		return "transport_error"
	case processing.IsRejected(err):
		return "rejected"
	default:
		return "error"
	}
}

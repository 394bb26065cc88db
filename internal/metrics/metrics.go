package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintrack_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maintrack_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maintrack_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maintrack_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	instancesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maintrack_instances_created_total",
			Help: "Inspection instances generated from templates",
		},
	)

	instancesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintrack_instances_skipped_total",
			Help: "Occurrences skipped because an instance already existed",
		},
		[]string{"signal"},
	)

	schedulesRolledForward = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maintrack_schedules_rolled_forward_total",
			Help: "Template schedules advanced past missed occurrences",
		},
	)

	instancesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maintrack_instances_expired_total",
			Help: "Instances moved to expired",
		},
	)

	instancesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maintrack_instances_completed_total",
			Help: "Instances moved to completed",
		},
	)

	expiryPenalty = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maintrack_expiry_penalty_points",
			Help:    "Penalty assigned to expired instances",
			Buckets: []float64{5, 10, 25, 50},
		},
	)

	entityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintrack_entity_failures_total",
			Help: "Per-entity units of work that rolled back",
		},
		[]string{"job"},
	)

	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintrack_job_runs_total",
			Help: "Job invocations by outcome",
		},
		[]string{"job", "trigger", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintrack_job_duration_seconds",
			Help:    "Job run time in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"job"},
	)

	operatorsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maintrack_operators",
			Help: "Operators per performance status after the last aggregation",
		},
		[]string{"status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
}

func RecordInstanceCreated() {
	instancesCreated.Inc()
}

func RecordInstanceSkipped(signal string) {
	instancesSkipped.WithLabelValues(signal).Inc()
}

func RecordRollForward() {
	schedulesRolledForward.Inc()
}

func RecordInstanceExpired(penalty int) {
	instancesExpired.Inc()
	expiryPenalty.Observe(float64(penalty))
}

func RecordInstanceCompleted() {
	instancesCompleted.Inc()
}

func RecordEntityFailure(job string) {
	entityFailures.WithLabelValues(job).Inc()
}

func RecordJobRun(job, trigger string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	jobRuns.WithLabelValues(job, trigger, status).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func UpdateOperatorStatuses(counts map[string]int) {
	for _, status := range []string{"active", "warning", "critical", "inactive"} {
		operatorsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// NormalizePath collapses ServeMux wildcards ({id}) to ":" so label
// cardinality stays bounded.
func NormalizePath(path string) string {
	if len(path) > 100 {
		path = path[:100]
	}

	normalized := make([]byte, 0, len(path))
	inParam := false
	for i := 0; i < len(path); i++ {
		switch {
		case path[i] == '{':
			inParam = true
			normalized = append(normalized, ':')
		case path[i] == '}':
			inParam = false
		case !inParam:
			normalized = append(normalized, path[i])
		}
	}
	return string(normalized)
}

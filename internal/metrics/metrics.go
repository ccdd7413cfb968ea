package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	agentCore = "agent_core"

	jobsTotal          = "jobs_total"
	jobsByStatus       = "jobs_by_status"
	jobDurationSeconds = "job_duration_seconds"
	checkpointsTotal   = "checkpoints_total"
	pendingCheckpoints = "pending_checkpoints"
	activeJobs         = "active_jobs"

	// Labels
	statusLabel = "status"
)

var statusLabels = []string{
	statusLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: agentCore,
		Name:      jobsTotal,
		Help:      "number of job status transitions by resulting status",
	},
	statusLabels,
)

var jobsByStatusMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: agentCore,
		Name:      jobsByStatus,
		Help:      "number of jobs currently stored by status",
	},
	statusLabels,
)

var jobDurationSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: agentCore,
		Name:      jobDurationSeconds,
		Help:      "job execution duration in seconds by terminal status",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600},
	},
	statusLabels,
)

var checkpointsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: agentCore,
		Name:      checkpointsTotal,
		Help:      "number of checkpoint status transitions by resulting status",
	},
	statusLabels,
)

var pendingCheckpointsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: agentCore,
		Name:      pendingCheckpoints,
		Help:      "number of checkpoints currently in PENDING status",
	},
)

var activeJobsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: agentCore,
		Name:      activeJobs,
		Help:      "number of jobs currently being executed by the worker",
	},
)

func IncreaseJobsTotalMetric(status string) {
	jobsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func SetJobsByStatusMetric(status string, count int) {
	jobsByStatusMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func ObserveJobDurationMetric(status string, seconds float64) {
	jobDurationSecondsMetric.With(prometheus.Labels{statusLabel: status}).Observe(seconds)
}

func IncreaseCheckpointsTotalMetric(status string) {
	checkpointsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func SetPendingCheckpointsMetric(count int) {
	pendingCheckpointsMetric.Set(float64(count))
}

func IncreaseActiveJobsMetric() {
	activeJobsMetric.Inc()
}

func DecreaseActiveJobsMetric() {
	activeJobsMetric.Dec()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(jobsByStatusMetric)
	prometheus.MustRegister(jobDurationSecondsMetric)
	prometheus.MustRegister(checkpointsTotalMetric)
	prometheus.MustRegister(pendingCheckpointsMetric)
	prometheus.MustRegister(activeJobsMetric)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "comfybridge"

	statusLabel  = "status"
	outcomeLabel = "outcome"
)

var jobsCreatedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "jobs_created_total",
		Help:      "number of jobs accepted by the broker",
	},
)

var jobReportsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "job_reports_total",
		Help:      "number of worker state reports by outcome",
	},
	[]string{outcomeLabel},
)

var jobsByStatusMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "jobs_by_status",
		Help:      "number of job records currently in each status",
	},
	[]string{statusLabel},
)

func IncJobsCreated() {
	jobsCreatedTotalMetric.Inc()
}

func IncJobReport(outcome string) {
	jobReportsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func SetJobStatusCount(status string, count int) {
	jobsByStatusMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func init() {
	prometheus.MustRegister(jobsCreatedTotalMetric)
	prometheus.MustRegister(jobReportsTotalMetric)
	prometheus.MustRegister(jobsByStatusMetric)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "meromart"
	subsystem = "cron"
)

// CronJobMetrics tracks scheduled job executions for the worker. All
// methods tolerate a nil receiver so wiring stays optional in tests.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the worker's job metrics on the provided
// registerer. A nil registerer yields a no-op collector.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of scheduled job runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by outcome.",
	}, []string{"job", "result"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the job's most recent successful run.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, lastSuccess)
	return &CronJobMetrics{
		duration:    duration,
		runs:        runs,
		lastSuccess: lastSuccess,
	}
}

// ObserveDuration records how long the named job ran.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(jobLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run and stamps the job's last success.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.runs == nil {
		return
	}
	label := jobLabel(job)
	c.runs.WithLabelValues(label, "success").Inc()
	c.lastSuccess.WithLabelValues(label).SetToCurrentTime()
}

// IncFailure counts a failed run.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(jobLabel(job), "failure").Inc()
}

func jobLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}

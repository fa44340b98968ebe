package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cronOutcomeOK    = "ok"
	cronOutcomeError = "error"
)

// CronJobMetrics tracks scheduled job runs by job name and outcome.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastelink_cron_runs_total",
			Help: "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wastelink_cron_run_seconds",
			Help:    "Wall time of scheduled job runs.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wastelink_cron_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.latency, m.lastSuccess)
	return m
}

// Record notes one finished run. A nil err counts as success.
func (c *CronJobMetrics) Record(job string, took time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.latency.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, cronOutcomeError).Inc()
		return
	}
	c.runs.WithLabelValues(job, cronOutcomeOK).Inc()
	c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// normalizeLabel keeps blank label values out of the series set.
func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

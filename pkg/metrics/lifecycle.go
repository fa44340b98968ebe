package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics records match lifecycle outcomes.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	rewards     prometheus.Counter
	credits     prometheus.Counter
	duration    *prometheus.HistogramVec
}

// NewLifecycleMetrics registers the lifecycle metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	m := &LifecycleMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastelink_match_transitions_total",
			Help: "Committed match state transitions.",
		}, []string{"event"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastelink_match_duplicates_total",
			Help: "Requests resolved as duplicates of earlier work.",
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastelink_lifecycle_conflicts_total",
			Help: "Lock conflicts observed by lifecycle operations.",
		}, []string{"operation"}),
		rewards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wastelink_rewards_awarded_total",
			Help: "Rewards awarded to posters.",
		}),
		credits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wastelink_reward_credits_total",
			Help: "Sum of reward credits issued.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wastelink_lifecycle_operation_seconds",
			Help:    "Duration of lifecycle operations including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.transitions, m.duplicates, m.conflicts, m.rewards, m.credits, m.duration)
	return m
}

// IncTransition counts a committed match event.
func (m *LifecycleMetrics) IncTransition(event string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncDuplicate counts an idempotent no-op outcome.
func (m *LifecycleMetrics) IncDuplicate(operation string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncConflict counts a lock conflict, retried or not.
func (m *LifecycleMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveReward records an awarded amount in credits.
func (m *LifecycleMetrics) ObserveReward(amount float64) {
	if m == nil || m.rewards == nil {
		return
	}
	m.rewards.Inc()
	if amount > 0 {
		m.credits.Add(amount)
	}
}

// ObserveDuration records how long an operation took.
func (m *LifecycleMetrics) ObserveDuration(operation, outcome string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(d.Seconds())
}

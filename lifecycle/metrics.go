package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes controller activity.
type MetricsRecorder interface {
	RecordSubmission(status string)
	RecordTransition(event, from, to string)
	RecordDenied(action string)
	RecordRunDuration(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(string)                 {}
func (nopRecorder) RecordTransition(string, string, string) {}
func (nopRecorder) RecordDenied(string)                     {}
func (nopRecorder) RecordRunDuration(string, time.Duration) {}

// PrometheusRecorder records controller metrics in a dedicated registry.
type PrometheusRecorder struct {
	Registry *prometheus.Registry

	Submissions *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Denied      *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()

	m := &PrometheusRecorder{
		Registry: reg,

		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scriptdesk",
				Name:      "submissions_total",
				Help:      "Executions created by submission or rerun, by initial status.",
			},
			[]string{"status"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scriptdesk",
				Name:      "transitions_total",
				Help:      "Applied lifecycle transitions.",
			},
			[]string{"event", "from", "to"},
		),

		Denied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scriptdesk",
				Name:      "denied_actions_total",
				Help:      "Actions ignored because the user lacked the capability.",
			},
			[]string{"action"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scriptdesk",
				Name:      "run_duration_seconds",
				Help:      "Time from execution start to its terminal runner status.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.Submissions,
		m.Transitions,
		m.Denied,
		m.RunDuration,
	)

	return m
}

func (m *PrometheusRecorder) RecordSubmission(status string) {
	m.Submissions.WithLabelValues(status).Inc()
}

func (m *PrometheusRecorder) RecordTransition(event, from, to string) {
	m.Transitions.WithLabelValues(event, from, to).Inc()
}

func (m *PrometheusRecorder) RecordDenied(action string) {
	m.Denied.WithLabelValues(action).Inc()
}

func (m *PrometheusRecorder) RecordRunDuration(outcome string, duration time.Duration) {
	m.RunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

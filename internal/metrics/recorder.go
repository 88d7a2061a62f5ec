// Package metrics records intake and video pipeline metrics with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is safe to use as a nil pointer, in which case it records nothing.
type Recorder struct {
	eventsTotal    *prometheus.CounterVec
	pipelinesTotal *prometheus.CounterVec
	pollAttempts   prometheus.Histogram
	jobDuration    prometheus.Histogram
}

// NewRecorder registers the bot's collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfintro_events_total",
				Help: "Inbound messaging events by kind and handling outcome",
			},
			[]string{"kind", "outcome"},
		),
		pipelinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfintro_pipeline_runs_total",
				Help: "Generation pipeline runs by outcome code",
			},
			[]string{"outcome"},
		),
		pollAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "selfintro_video_poll_attempts",
			Help:    "Status polls issued per video job",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120},
		}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "selfintro_video_job_duration_seconds",
			Help:    "Wall time from job submission to terminal status",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8),
		}),
	}
}

// ObserveEvent counts one handled event.
func (r *Recorder) ObserveEvent(kind, outcome string) {
	if r == nil {
		return
	}
	r.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObservePipeline counts one pipeline run. outcome is "success" or an error code.
func (r *Recorder) ObservePipeline(outcome string) {
	if r == nil {
		return
	}
	r.pipelinesTotal.WithLabelValues(outcome).Inc()
}

// ObserveVideoJob records poll count and duration of a finished job.
func (r *Recorder) ObserveVideoJob(attempts int, d time.Duration) {
	if r == nil {
		return
	}
	r.pollAttempts.Observe(float64(attempts))
	r.jobDuration.Observe(d.Seconds())
}

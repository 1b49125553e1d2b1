package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-tracker/internal/events"
)

// PrometheusSink exports poll-controller metrics: activations, poll outcomes,
// retry backoffs, stop reasons and cleanup results.
type PrometheusSink struct {
	activations   prometheus.Counter
	active        prometheus.Gauge
	polls         *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	retryBackoff  prometheus.Histogram
	stops         *prometheus.CounterVec
	cleanups      *prometheus.CounterVec
	completedJobs prometheus.Counter

	tracker *subjectTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_activations_total",
			Help: "Total number of times polling was started.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active",
			Help: "Number of subjects currently being polled.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_polls_total",
			Help: "Poll cycles partitioned by outcome.",
		}, []string{"outcome"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_poll_latency_seconds",
			Help:    "Round-trip latency of progress queries.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		retryBackoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_retry_backoff_seconds",
			Help:    "Backoff delays chosen for retry polls.",
			Buckets: []float64{1, 2, 4, 8, 10},
		}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_stops_total",
			Help: "Polling stops partitioned by reason.",
		}, []string{"reason"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_cleanups_total",
			Help: "Cleanup notifications partitioned by result.",
		}, []string{"result"}),
		completedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_jobs_completed_total",
			Help: "Jobs observed with every step completed.",
		}),
		tracker: newSubjectTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.activations,
		s.active,
		s.polls,
		s.pollLatency,
		s.retryBackoff,
		s.stops,
		s.cleanups,
		s.completedJobs,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register tracker collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt events.Event) {
	switch evt.Kind {
	case events.KindStarted:
		s.activations.Inc()
		if s.tracker.start(evt.Subject) {
			s.active.Inc()
		}
	case events.KindPollSucceeded:
		s.polls.WithLabelValues("success").Inc()
		s.observeLatency(evt)
	case events.KindPollFailed:
		s.polls.WithLabelValues("failure").Inc()
		s.observeLatency(evt)
	case events.KindRetryScheduled:
		s.retryBackoff.Observe(evt.Backoff.Seconds())
	case events.KindCompleted:
		s.completedJobs.Inc()
	case events.KindStopped:
		s.stops.WithLabelValues(evt.Reason).Inc()
		if s.tracker.stop(evt.Subject) {
			s.active.Dec()
		}
	case events.KindCleanupOK:
		s.cleanups.WithLabelValues("success").Inc()
	case events.KindCleanupFailed:
		s.cleanups.WithLabelValues("failure").Inc()
	}
}

func (s *PrometheusSink) observeLatency(evt events.Event) {
	if evt.Latency > 0 {
		s.pollLatency.Observe(evt.Latency.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type subjectTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newSubjectTracker() *subjectTracker {
	return &subjectTracker{active: make(map[string]struct{})}
}

func (t *subjectTracker) start(subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[subject]; ok {
		return false
	}
	t.active[subject] = struct{}{}
	return true
}

func (t *subjectTracker) stop(subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[subject]; !ok {
		return false
	}
	delete(t.active, subject)
	return true
}
